package acquire_test

import (
	"acquire-server/internal/acquire"
	"acquire-server/internal/board"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// SETUP
// ============================================================================

func TestNewGame(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, 4)

	assert.Len(g.Players, 4)
	assert.Equal(acquire.PhasePlaceTile, g.Phase)
	assert.Equal(board.TileCount-4*6, g.Bag.Count())
	for _, p := range g.Players {
		assert.Len(p.Hand, 6)
		assert.Equal(6000, p.Balance)
		for _, id := range p.Hand {
			assert.False(g.Bag.Contains(id))
		}
	}
	assert.NoError(g.Validate())
}

func TestNewGamePlayerCount(t *testing.T) {
	_, err := acquire.NewGame("g", []acquire.Seat{{ID: "solo", Name: "Solo"}})
	assert.ErrorIs(t, err, acquire.ErrPlayerCount)

	seats := make([]acquire.Seat, 7)
	_, err = acquire.NewGame("g", seats)
	assert.ErrorIs(t, err, acquire.ErrPlayerCount)

	rules := acquire.DefaultRules()
	rules.StartingBalance = 100
	g, err := acquire.NewGame("g", []acquire.Seat{{ID: "a"}, {ID: "b"}}, acquire.WithRules(rules))
	require.NoError(t, err)
	assert.Equal(t, 100, g.Players[0].Balance)
}

// ============================================================================
// PLACEMENT
// ============================================================================

func TestPlacementFlow(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, 2)
	placeLoose(t, g, "1A")
	giveTiles(t, g, 0, "1B", "12A", "12C", "12E", "12G", "12I")

	_, err := g.PreviewTile("p2", tileID(t, "1B"))
	assert.ErrorIs(err, acquire.ErrNotYourTurn)

	_, err = g.PreviewTile("p1", tileID(t, "5E"))
	assert.ErrorIs(err, acquire.ErrTileNotInHand)

	_, err = g.PreviewTile("p1", tileID(t, "1A"))
	assert.ErrorIs(err, acquire.ErrTileAlreadyPlaced)

	p, err := g.PreviewTile("p1", tileID(t, "1B"))
	require.NoError(t, err)
	assert.Equal(acquire.PlacementFound, p.Kind)
	require.NotNil(t, g.Pending)

	assert.NoError(g.CancelPlacement("p1"))
	assert.Nil(g.Pending)
	assert.ErrorIs(g.CancelPlacement("p1"), acquire.ErrNoPendingPlacement)

	_, err = g.ConfirmPlacement("p1", acquire.Sora)
	assert.ErrorIs(err, acquire.ErrNoPendingPlacement)

	_, err = g.PreviewTile("p1", tileID(t, "1B"))
	require.NoError(t, err)
	_, err = g.ConfirmPlacement("p1", "")
	assert.ErrorIs(err, acquire.ErrHotelNameRequired)

	p, err = g.ConfirmPlacement("p1", acquire.Sora)
	require.NoError(t, err)
	assert.Equal(acquire.Sora, p.Survivor)

	chain, ok := g.Registry.Chain(acquire.Sora)
	require.True(t, ok)
	assert.Equal(tileIDs(t, "1A", "1B"), chain.Tiles)
	assert.Equal(tileID(t, "1B"), chain.Home)
	assert.Empty(g.Loose)
	assert.Equal(tileIDs(t, "1A", "1B"), g.Placed)
	assert.False(g.Players[0].HasTile(tileID(t, "1B")))
	assert.Equal(acquire.PhaseBuyShares, g.Phase)
	assert.NoError(g.Validate())

	_, err = g.PreviewTile("p1", tileID(t, "12A"))
	assert.ErrorIs(err, acquire.ErrTileAlreadyMoved, "one tile per turn")

	types := []acquire.LogType{}
	for _, e := range g.Log {
		types = append(types, e.Type)
	}
	assert.Equal([]acquire.LogType{acquire.LogTilePlacement, acquire.LogHotelEstablish}, types)
}

func TestLonePlacement(t *testing.T) {
	g := newTestGame(t, 2)
	giveTiles(t, g, 0, "6E")

	_, err := g.PreviewTile("p1", tileID(t, "6E"))
	require.NoError(t, err)
	p, err := g.ConfirmPlacement("p1", acquire.Sora)
	require.NoError(t, err)

	assert.Equal(t, acquire.PlacementLone, p.Kind)
	assert.Equal(t, tileIDs(t, "6E"), g.Loose)
	assert.Equal(t, 0, g.Registry.Len(), "name is ignored for a lone tile")
}

func TestSafeChainBlockLeavesStateUnchanged(t *testing.T) {
	g := newTestGame(t, 2)
	foundChain(t, g, acquire.Sora, columnRun(1, 11)...)
	foundChain(t, g, acquire.Hare, columnRun(4, 11)...)
	giveTiles(t, g, 0, "3A", "12I")
	g.Players[1].Shares[acquire.Sora] = 4

	before, err := json.Marshal(g)
	require.NoError(t, err)

	p, err := g.PreviewTile("p1", tileID(t, "3A"))
	assert.ErrorIs(t, err, acquire.ErrIllegalPlacement)
	assert.Equal(t, acquire.PlacementBlocked, p.Kind)
	assert.Nil(t, g.Pending)

	// a stale pending placement is re-checked on confirm
	g.Pending = &acquire.PendingPlacement{PlayerID: "p1", Tile: tileID(t, "3A")}
	_, err = g.ConfirmPlacement("p1", "")
	assert.ErrorIs(t, err, acquire.ErrIllegalPlacement)
	g.Pending = nil

	after, err := json.Marshal(g)
	require.NoError(t, err)
	if diff := cmp.Diff(string(before), string(after)); diff != "" {
		t.Errorf("blocked placement changed the game (-before +after):\n%s", diff)
	}
}

func TestSwapMergeDirection(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, 2)
	foundChain(t, g, acquire.Sora, "1E", "2E")
	foundChain(t, g, acquire.Kumo, "4E", "5E")
	giveTiles(t, g, 0, "3E")

	p, err := g.PreviewTile("p1", tileID(t, "3E"))
	require.NoError(t, err)
	assert.Equal(acquire.Sora, p.Survivor)

	p, err = g.SwapMergeDirection("p1")
	require.NoError(t, err)
	assert.Equal(acquire.Kumo, p.Survivor)

	_, err = g.SwapMergeDirection("p2")
	assert.ErrorIs(err, acquire.ErrNotYourTurn)

	p, err = g.ConfirmPlacement("p1", "")
	require.NoError(t, err)
	assert.Equal(acquire.Kumo, p.Survivor)
	assert.True(g.Registry.IsActive(acquire.Kumo))
	assert.False(g.Registry.IsActive(acquire.Sora))
	assert.Equal(5, g.Registry.SizeOf(acquire.Kumo))
	assert.Equal(acquire.PhaseBuyShares, g.Phase, "nobody holds Sora, no decisions")
}

func TestSwapWithoutTie(t *testing.T) {
	g := newTestGame(t, 2)
	foundChain(t, g, acquire.Sora, "1E", "2E")
	foundChain(t, g, acquire.Kumo, "4E", "5E", "6E")
	giveTiles(t, g, 0, "3E")

	_, err := g.PreviewTile("p1", tileID(t, "3E"))
	require.NoError(t, err)
	_, err = g.SwapMergeDirection("p1")
	assert.ErrorIs(t, err, acquire.ErrCannotSwap)
}

// ============================================================================
// MERGERS
// ============================================================================

// Two players: Sora is founded and grown to 3 tiles, p2 buys two shares, then
// p1 merges it into a 12 tile Hare chain and p2 sells at the pre-merge price.
func TestMergeSellScenario(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, 2)
	foundChain(t, g, acquire.Hare, "2D", "2E", "2F", "2G", "2H", "2I", "3A", "3B", "3C", "3D", "3E", "3F")
	placeLoose(t, g, "1A")
	giveTiles(t, g, 0, "1B", "1D", "12A", "12C", "12E", "12G")
	giveTiles(t, g, 1, "1C", "9A", "9C", "9E", "9G", "9I")
	g.Players[0].Shares[acquire.Hare] = 3

	// p1 founds Sora
	_, err := g.PreviewTile("p1", tileID(t, "1B"))
	require.NoError(t, err)
	_, err = g.ConfirmPlacement("p1", acquire.Sora)
	require.NoError(t, err)
	require.NoError(t, g.EndTurn("p1"))

	// p2 grows it to 3 and buys two shares at 300
	_, err = g.PreviewTile("p2", tileID(t, "1C"))
	require.NoError(t, err)
	_, err = g.ConfirmPlacement("p2", "")
	require.NoError(t, err)
	assert.Equal(3, g.Registry.SizeOf(acquire.Sora))
	require.NoError(t, g.BuyShares("p2", map[acquire.HotelName]int{acquire.Sora: 2}))
	assert.Equal(5400, g.Players[1].Balance)
	require.NoError(t, g.EndTurn("p2"))

	// p1 merges Sora into Hare
	p, err := g.PreviewTile("p1", tileID(t, "1D"))
	require.NoError(t, err)
	assert.Equal(acquire.PlacementMerge, p.Kind)
	assert.Equal(acquire.Hare, p.Survivor)
	_, err = g.ConfirmPlacement("p1", "")
	require.NoError(t, err)

	assert.Equal(acquire.PhaseResolveMerge, g.Phase)
	assert.Equal(16, g.Registry.SizeOf(acquire.Hare))
	assert.False(g.Registry.IsActive(acquire.Sora))
	assert.Equal(5400+3000+1500, g.Players[1].Balance, "sole holder takes both bonuses")

	assert.ErrorIs(g.ResolveMerge("p1", acquire.DecisionSell), acquire.ErrNotYourDecision)
	assert.ErrorIs(g.EndTurn("p1"), acquire.ErrMergeInProgress)
	assert.ErrorIs(g.BuyShares("p1", map[acquire.HotelName]int{acquire.Hare: 1}), acquire.ErrMergeInProgress)

	before := g.Players[1].Balance
	require.NoError(t, g.ResolveMerge("p2", acquire.DecisionSell))
	assert.Equal(before+600, g.Players[1].Balance)
	assert.Equal(0, g.Players[1].Shares[acquire.Sora])

	assert.Equal(acquire.PhaseBuyShares, g.Phase)
	assert.False(g.Merge.InProgress())
	assert.ErrorIs(g.ResolveMerge("p2", acquire.DecisionSell), acquire.ErrNoMergeInProgress)
	assert.NoError(g.Validate())
}

func mergeFixture(t *testing.T) *acquire.Game {
	t.Helper()
	g := newTestGame(t, 3)
	foundChain(t, g, acquire.Sora, "1A", "1B", "1C")
	foundChain(t, g, acquire.Hare, "3A", "3B", "3C", "3D")
	giveTiles(t, g, 0, "2A", "12A", "12C")
	return g
}

func confirm(t *testing.T, g *acquire.Game, player, label string) {
	t.Helper()
	_, err := g.PreviewTile(player, tileID(t, label))
	require.NoError(t, err)
	_, err = g.ConfirmPlacement(player, "")
	require.NoError(t, err)
}

func TestMergeExchange(t *testing.T) {
	assert := assert.New(t)
	g := mergeFixture(t)
	g.Players[1].Shares[acquire.Sora] = 5

	confirm(t, g, "p1", "2A")
	require.NoError(t, g.ResolveMerge("p2", acquire.DecisionExchange))

	assert.Equal(0, g.Players[1].Shares[acquire.Sora])
	assert.Equal(2, g.Players[1].Shares[acquire.Hare], "four shares traded, one forfeited")
}

func TestMergeExchangeRespectsCap(t *testing.T) {
	assert := assert.New(t)
	g := mergeFixture(t)
	g.Players[1].Shares[acquire.Sora] = 6
	g.Players[2].Shares[acquire.Hare] = 24

	confirm(t, g, "p1", "2A")
	require.NoError(t, g.ResolveMerge("p2", acquire.DecisionExchange))

	assert.Equal(1, g.Players[1].Shares[acquire.Hare])
	assert.Equal(25, g.Issued(acquire.Hare))
}

func TestMergeExchangeNeedsTwo(t *testing.T) {
	g := mergeFixture(t)
	g.Players[1].Shares[acquire.Sora] = 1

	confirm(t, g, "p1", "2A")
	assert.ErrorIs(t, g.ResolveMerge("p2", acquire.DecisionExchange), acquire.ErrCannotExchange)
	assert.ErrorIs(t, g.ResolveMerge("p2", "hold"), acquire.ErrUnknownDecision)
	assert.NoError(t, g.ResolveMerge("p2", acquire.DecisionKeep))

	assert.Equal(t, 1, g.Players[1].Shares[acquire.Sora], "kept shares stay in the portfolio")
	assert.Equal(t, 0, g.PriceOf(acquire.Sora))
}

func TestMergeDecisionOrder(t *testing.T) {
	g := mergeFixture(t)
	g.CurrentPlayer = 1
	giveTiles(t, g, 1, "2A")
	for _, p := range g.Players {
		p.Shares[acquire.Sora] = 1
	}

	confirm(t, g, "p2", "2A")

	var order []string
	for g.Merge.InProgress() {
		active, _, _ := g.Merge.Active()
		order = append(order, active)
		require.NoError(t, g.ResolveMerge(active, acquire.DecisionKeep))
	}
	assert.Equal(t, []string{"p2", "p3", "p1"}, order)
}

func TestMergeBonusSplits(t *testing.T) {
	tests := []struct {
		name   string
		shares [3]int
		want   [3]int
	}{
		{"sole holder", [3]int{0, 4, 0}, [3]int{0, 4500, 0}},
		{"majority and minority", [3]int{0, 4, 2}, [3]int{0, 3000, 1500}},
		{"tie for first", [3]int{3, 3, 1}, [3]int{2250, 2250, 0}},
		{"tie for second", [3]int{1, 5, 1}, [3]int{750, 3000, 750}},
		{"three way tie", [3]int{2, 2, 2}, [3]int{1500, 1500, 1500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mergeFixture(t)
			for i, n := range tt.shares {
				g.Players[i].Shares[acquire.Sora] = n
			}

			confirm(t, g, "p1", "2A")

			for i, p := range g.Players {
				assert.Equal(t, 6000+tt.want[i], p.Balance, "player %d", i+1)
			}
		})
	}
}

// ============================================================================
// MARKET
// ============================================================================

func marketFixture(t *testing.T) *acquire.Game {
	t.Helper()
	g := newTestGame(t, 2)
	foundChain(t, g, acquire.Sora, "1A", "1B")
	foundChain(t, g, acquire.Arashi, "5E", "5F", "5G")
	giveTiles(t, g, 0, "12I", "12A")
	return g
}

func TestBuyShares(t *testing.T) {
	assert := assert.New(t)
	g := marketFixture(t)

	order := map[acquire.HotelName]int{acquire.Sora: 1}
	assert.ErrorIs(g.BuyShares("p1", order), acquire.ErrMustPlaceTile)

	confirm(t, g, "p1", "12I")

	assert.ErrorIs(g.BuyShares("p2", order), acquire.ErrNotYourTurn)
	assert.ErrorIs(g.BuyShares("p1", map[acquire.HotelName]int{acquire.Kumo: 1}), acquire.ErrUnknownChain)
	assert.ErrorIs(g.BuyShares("p1", map[acquire.HotelName]int{"Tower": 1}), acquire.ErrUnknownHotel)
	assert.ErrorIs(g.BuyShares("p1", map[acquire.HotelName]int{acquire.Sora: -1}), acquire.ErrInvalidOrder)
	assert.ErrorIs(g.BuyShares("p1", map[acquire.HotelName]int{}), acquire.ErrInvalidOrder)
	assert.ErrorIs(g.BuyShares("p1", map[acquire.HotelName]int{acquire.Sora: 4}), acquire.ErrPurchaseLimit)

	require.NoError(t, g.BuyShares("p1", map[acquire.HotelName]int{acquire.Sora: 1, acquire.Arashi: 1}))
	assert.Equal(6000-200-500, g.Players[0].Balance)
	assert.Equal(1, g.Players[0].Shares[acquire.Sora])
	assert.Equal(1, g.Players[0].Shares[acquire.Arashi])

	require.NoError(t, g.BuyShares("p1", order))
	assert.ErrorIs(g.BuyShares("p1", order), acquire.ErrPurchaseLimit, "three per turn")
}

func TestBuySharesFundsAndCap(t *testing.T) {
	assert := assert.New(t)
	g := marketFixture(t)
	confirm(t, g, "p1", "12I")

	g.Players[0].Balance = 900
	balance := g.Players[0].Balance
	assert.ErrorIs(g.BuyShares("p1", map[acquire.HotelName]int{acquire.Arashi: 2}), acquire.ErrInsufficientFunds)
	assert.Equal(balance, g.Players[0].Balance)
	assert.Equal(0, g.Players[0].Shares[acquire.Arashi])

	g.Players[1].Shares[acquire.Sora] = 24
	assert.ErrorIs(g.BuyShares("p1", map[acquire.HotelName]int{acquire.Sora: 2}), acquire.ErrShareCapExceeded)
	assert.NoError(g.BuyShares("p1", map[acquire.HotelName]int{acquire.Sora: 1}))
	assert.Equal(0, g.Available(acquire.Sora))
}

// ============================================================================
// TURNS AND GAME END
// ============================================================================

func TestEndTurn(t *testing.T) {
	assert := assert.New(t)
	g := marketFixture(t)

	assert.ErrorIs(g.EndTurn("p1"), acquire.ErrMustPlaceTile)
	confirm(t, g, "p1", "12I")
	require.NoError(t, g.BuyShares("p1", map[acquire.HotelName]int{acquire.Sora: 1}))

	bag := g.Bag.Count()
	require.NoError(t, g.EndTurn("p1"))

	assert.Len(g.Players[0].Hand, 6, "hand refilled")
	assert.Equal(bag-5, g.Bag.Count())
	assert.Equal(1, g.CurrentPlayer)
	assert.Equal(1, g.Turn)
	assert.Equal(0, g.Purchased)
	assert.Equal(acquire.PhasePlaceTile, g.Phase)
	assert.Equal("p2", g.TurnHolder().ID)
}

func TestEndTurnWithoutPlayableTile(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, 2)
	foundChain(t, g, acquire.Sora, columnRun(1, 11)...)
	foundChain(t, g, acquire.Hare, columnRun(4, 11)...)
	giveTiles(t, g, 0, "3A", "3B")

	assert.Empty(g.PlayableTiles(g.Players[0]))
	require.NoError(t, g.EndTurn("p1"), "nothing to place")

	assert.False(g.Players[0].HasTile(tileID(t, "3A")), "dead tiles are replaced")
	assert.Len(g.Players[0].Hand, 6)
	assert.Equal(acquire.LogTileDiscard, g.Log[len(g.Log)-1].Type)
}

func TestDeclareGameEnd(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, 2)
	foundChain(t, g, acquire.Sora, columnRun(1, 11)...)
	foundChain(t, g, acquire.Kaminari, columnRun(6, 2)...)
	giveTiles(t, g, 0, "12I")
	g.Players[0].Shares[acquire.Sora] = 2
	g.Players[1].Shares[acquire.Sora] = 1
	g.Players[1].Shares[acquire.Kaminari] = 3

	assert.ErrorIs(g.DeclareGameEnd("p1"), acquire.ErrMustPlaceTile)
	confirm(t, g, "p1", "12I")

	assert.ErrorIs(g.DeclareGameEnd("p1"), acquire.ErrGameNotOver)
	assert.False(g.CanEndGame())

	foundChain(t, g, acquire.Hare, columnRun(9, 11)...)
	require.NoError(t, g.Registry.Remove(acquire.Kaminari))
	g.Players[1].Shares[acquire.Kaminari] = 0
	assert.True(g.CanEndGame(), "every chain is safe")

	assert.ErrorIs(g.DeclareGameEnd("p2"), acquire.ErrNotYourTurn)
	require.NoError(t, g.DeclareGameEnd("p1"))

	// Sora at 11 tiles: price 700, majority 7000, minority 3500
	assert.Equal(6000+7000+2*700, g.Players[0].Balance)
	assert.Equal(6000+3500+700, g.Players[1].Balance)
	assert.Empty(g.Players[0].Shares)
	assert.Equal("p1", g.Winner)
	assert.Equal(acquire.PhaseGameOver, g.Phase)
	require.Len(t, g.Standings, 2)
	assert.Equal("p2", g.Standings[1].PlayerID)

	assert.ErrorIs(g.EndTurn("p1"), acquire.ErrGameOver)
	_, err := g.PreviewTile("p1", tileID(t, "12I"))
	assert.ErrorIs(err, acquire.ErrGameOver)
}

func TestDeclareGameEndWithoutPlayableTile(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, 2)
	foundChain(t, g, acquire.Sora, columnRun(1, 11)...)
	foundChain(t, g, acquire.Hare, columnRun(4, 11)...)
	giveTiles(t, g, 0, "3A")

	require.Equal(t, acquire.PhasePlaceTile, g.Phase)
	assert.Empty(g.PlayableTiles(g.Players[0]))
	require.NoError(t, g.DeclareGameEnd("p1"), "nothing to place first")
	assert.Equal(acquire.PhaseGameOver, g.Phase)
}

func TestCanEndGameAtFortyOne(t *testing.T) {
	g := newTestGame(t, 2)
	foundChain(t, g, acquire.Sora, columnRun(1, 41)...)
	foundChain(t, g, acquire.Kumo, "12A", "12B")
	assert.True(t, g.CanEndGame())
}

// ============================================================================
// PERSISTENCE BOUNDARY
// ============================================================================

func TestDecodeRoundTrip(t *testing.T) {
	g := mergeFixture(t)
	g.Players[1].Shares[acquire.Sora] = 3
	confirm(t, g, "p1", "2A")
	require.True(t, g.Merge.InProgress())

	data, err := json.Marshal(g)
	require.NoError(t, err)

	restored, err := acquire.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, g.Registry.Chains(), restored.Registry.Chains())
	assert.Equal(t, g.Merge, restored.Merge)

	// the restored copy carries on where the original stopped
	require.NoError(t, restored.ResolveMerge("p2", acquire.DecisionSell))
	assert.Equal(t, acquire.PhaseBuyShares, restored.Phase)
}

// resolvingFixture leaves p2 deciding on the defunct Sora, with p3 queued
// behind.
func resolvingFixture(t *testing.T) *acquire.Game {
	t.Helper()
	g := mergeFixture(t)
	g.Players[1].Shares[acquire.Sora] = 3
	g.Players[2].Shares[acquire.Sora] = 2
	confirm(t, g, "p1", "2A")
	require.Equal(t, acquire.PhaseResolveMerge, g.Phase)
	return g
}

func TestDecodeRejectsCorruptGames(t *testing.T) {
	idle := func(g *acquire.Game) {
		g.Phase = acquire.PhasePlaceTile
		g.Merge = acquire.MergeState{Stage: acquire.MergeIdle}
	}

	tests := []struct {
		name   string
		mutate func(g *acquire.Game)
	}{
		{"negative balance", func(g *acquire.Game) { g.Players[0].Balance = -1 }},
		{"turn out of range", func(g *acquire.Game) { g.CurrentPlayer = 5 }},
		{"chain tile not placed", func(g *acquire.Game) { g.Placed = g.Placed[1:] }},
		{"hand holds placed tile", func(g *acquire.Game) { g.Players[1].Hand = append(g.Players[1].Hand, g.Placed[0]) }},
		{"over issued", func(g *acquire.Game) { g.Players[0].Shares[acquire.Sora] = 26 }},
		{"placed tile in bag", func(g *acquire.Game) { g.Bag.Tiles = append(g.Bag.Tiles, g.Placed[0]) }},
		{"hand tile in bag", func(g *acquire.Game) { g.Bag.Tiles = append(g.Bag.Tiles, g.Players[0].Hand[0]) }},
		{"unknown phase", func(g *acquire.Game) { g.Phase = "lobby" }},
		{"merge outside its phase", func(g *acquire.Game) { g.Phase = acquire.PhaseBuyShares }},
		{"merge phase without merge", func(g *acquire.Game) { g.Merge = acquire.MergeState{Stage: acquire.MergeIdle} }},
		{"unknown merge stage", func(g *acquire.Game) { g.Merge.Stage = "paused" }},
		{"queue names unseated player", func(g *acquire.Game) { g.Merge.Queue[0] = "ghost" }},
		{"order names unseated player", func(g *acquire.Game) { g.Merge.Order = append(g.Merge.Order, "ghost") }},
		{"survivor not on the board", func(g *acquire.Game) { g.Merge.Survivor = acquire.Kumo }},
		{"defunct chain is the survivor", func(g *acquire.Game) { g.Merge.Current.Name = acquire.Hare }},
		{"defunct chain unknown", func(g *acquire.Game) { g.Merge.Current.Name = "Tower" }},
		{"pending defunct chain still active", func(g *acquire.Game) {
			g.Merge.Pending = []acquire.DefunctChain{{Name: acquire.Hare, Size: 8, Price: 600}}
		}},
		{"pending placement of another player", func(g *acquire.Game) {
			idle(g)
			g.Pending = &acquire.PendingPlacement{PlayerID: "p2", Tile: g.Players[1].Hand[0]}
		}},
		{"pending tile not in hand", func(g *acquire.Game) {
			idle(g)
			g.Pending = &acquire.PendingPlacement{PlayerID: "p1", Tile: g.Players[1].Hand[0]}
		}},
		{"pending placement during merge", func(g *acquire.Game) {
			g.Pending = &acquire.PendingPlacement{PlayerID: "p1", Tile: g.Players[0].Hand[0]}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := resolvingFixture(t)
			data, err := json.Marshal(g)
			require.NoError(t, err)
			_, err = acquire.Decode(data)
			require.NoError(t, err, "fixture must decode before it is damaged")

			tt.mutate(g)
			data, err = json.Marshal(g)
			require.NoError(t, err)

			_, err = acquire.Decode(data)
			assert.ErrorIs(t, err, acquire.ErrCorruptGame)
		})
	}

	t.Run("null chain entry", func(t *testing.T) {
		data, err := json.Marshal(resolvingFixture(t))
		require.NoError(t, err)

		var fields map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &fields))
		fields["chains"] = json.RawMessage(`[null]`)
		data, err = json.Marshal(fields)
		require.NoError(t, err)

		_, err = acquire.Decode(data)
		assert.ErrorIs(t, err, acquire.ErrCorruptGame)
	})

	_, err := acquire.Decode([]byte(`{"players": [`))
	assert.ErrorIs(t, err, acquire.ErrCorruptGame)
}
