package acquire_test

import (
	"acquire-server/internal/acquire"
	"acquire-server/internal/board"
	"fmt"
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func tileID(t *testing.T, label string) board.TileID {
	t.Helper()
	c, err := board.ParseCoordinate(label)
	require.NoError(t, err)
	id, err := c.TileID()
	require.NoError(t, err)
	return id
}

func tileIDs(t *testing.T, labels ...string) []board.TileID {
	t.Helper()
	ids := make([]board.TileID, 0, len(labels))
	for _, l := range labels {
		ids = append(ids, tileID(t, l))
	}
	return ids
}

// newTestGame seats players p1..pn with a seeded bag and a fixed clock.
func newTestGame(t *testing.T, players int) *acquire.Game {
	t.Helper()
	return newSeededGame(t, players, 1)
}

func newSeededGame(t *testing.T, players int, seed int64) *acquire.Game {
	t.Helper()
	seats := make([]acquire.Seat, 0, players)
	for i := 1; i <= players; i++ {
		seats = append(seats, acquire.Seat{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("Player %d", i)})
	}
	g, err := acquire.NewGame("game-1", seats,
		acquire.WithRand(rand.New(rand.NewSource(seed))),
		acquire.WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)
	return g
}

// placeLoose puts tiles on the board without a chain.
func placeLoose(t *testing.T, g *acquire.Game, labels ...string) {
	t.Helper()
	for _, id := range tileIDs(t, labels...) {
		takeTile(g, id)
		g.Placed = append(g.Placed, id)
		g.Loose = append(g.Loose, id)
	}
	slices.Sort(g.Placed)
	slices.Sort(g.Loose)
}

// foundChain puts a chain on the board directly, home on the first label.
func foundChain(t *testing.T, g *acquire.Game, name acquire.HotelName, labels ...string) {
	t.Helper()
	ids := tileIDs(t, labels...)
	for _, id := range ids {
		takeTile(g, id)
		g.Placed = append(g.Placed, id)
	}
	slices.Sort(g.Placed)
	_, err := g.Registry.Create(name, ids, ids[0])
	require.NoError(t, err)
}

// giveTiles replaces a player's hand.
func giveTiles(t *testing.T, g *acquire.Game, player int, labels ...string) {
	t.Helper()
	ids := tileIDs(t, labels...)
	for _, id := range ids {
		takeTile(g, id)
	}
	g.Players[player].Hand = ids
}

// takeTile removes a tile from the bag and every hand.
func takeTile(g *acquire.Game, id board.TileID) {
	g.Bag.Tiles = slices.DeleteFunc(g.Bag.Tiles, func(t board.TileID) bool { return t == id })
	for _, p := range g.Players {
		p.Hand = slices.DeleteFunc(p.Hand, func(t board.TileID) bool { return t == id })
	}
}

// columnRun returns labels for a vertical run in one column, starting at row A.
func columnRun(col, length int) []string {
	rows := "ABCDEFGHI"
	out := make([]string, 0, length)
	for i := 0; i < length; i++ {
		out = append(out, fmt.Sprintf("%d%c", col+i/9, rows[i%9]))
	}
	return out
}
