package acquire

import (
	"fmt"
	"slices"

	"acquire-server/internal/board"
)

func (g *Game) requireTurn(playerID string) (*Player, error) {
	if g.Over() {
		return nil, ErrGameOver
	}
	p, ok := g.Player(playerID)
	if !ok {
		return nil, ErrUnknownPlayer
	}
	if p != g.TurnHolder() {
		return nil, ErrNotYourTurn
	}
	return p, nil
}

func (g *Game) requirePlacePhase() error {
	switch g.Phase {
	case PhasePlaceTile:
		return nil
	case PhaseResolveMerge:
		return ErrMergeInProgress
	case PhaseBuyShares:
		return ErrTileAlreadyMoved
	}
	return ErrWrongPhase
}

/*
 * Placement
 */

// PreviewTile resolves a tile from the turn holder's hand and remembers it as
// the pending placement. A blocked tile is reported with its placement so the
// client can show why, and is not remembered.
func (g *Game) PreviewTile(playerID string, tile board.TileID) (Placement, error) {
	p, err := g.requireTurn(playerID)
	if err != nil {
		return Placement{}, err
	}
	if err := g.requirePlacePhase(); err != nil {
		return Placement{}, err
	}
	if g.IsPlaced(tile) {
		return Placement{}, ErrTileAlreadyPlaced
	}
	if !p.HasTile(tile) {
		return Placement{}, ErrTileNotInHand
	}

	placement := g.Resolve(tile, 0)
	if err := placement.Err(); err != nil {
		return placement, err
	}
	g.Pending = &PendingPlacement{PlayerID: playerID, Tile: tile}
	return placement, nil
}

// SwapMergeDirection picks the next chain among those tied for largest as
// the survivor of the pending merge.
func (g *Game) SwapMergeDirection(playerID string) (Placement, error) {
	pending, err := g.pendingFor(playerID)
	if err != nil {
		return Placement{}, err
	}
	if !g.Resolve(pending.Tile, pending.Swap).CanSwap() {
		return Placement{}, ErrCannotSwap
	}
	pending.Swap++
	return g.Resolve(pending.Tile, pending.Swap), nil
}

func (g *Game) CancelPlacement(playerID string) error {
	if _, err := g.pendingFor(playerID); err != nil {
		return err
	}
	g.Pending = nil
	return nil
}

func (g *Game) pendingFor(playerID string) (*PendingPlacement, error) {
	if _, err := g.requireTurn(playerID); err != nil {
		return nil, err
	}
	if err := g.requirePlacePhase(); err != nil {
		return nil, err
	}
	if g.Pending == nil || g.Pending.PlayerID != playerID {
		return nil, ErrNoPendingPlacement
	}
	return g.Pending, nil
}

// ConfirmPlacement commits the pending tile. name is only read when the tile
// founds a chain. The placement is resolved again against the current board;
// a blocked result leaves the game untouched.
func (g *Game) ConfirmPlacement(playerID string, name HotelName) (Placement, error) {
	pending, err := g.pendingFor(playerID)
	if err != nil {
		return Placement{}, err
	}
	p := g.TurnHolder()
	if !p.HasTile(pending.Tile) {
		return Placement{}, ErrTileNotInHand
	}

	placement := g.Resolve(pending.Tile, pending.Swap)
	if err := placement.Err(); err != nil {
		return placement, err
	}

	reg := g.Registry.Clone()
	tiles := append([]board.TileID{placement.Tile}, placement.Joined...)

	switch placement.Kind {
	case PlacementFound:
		if name == "" {
			return placement, ErrHotelNameRequired
		}
		if !name.Valid() {
			return placement, fmt.Errorf("%w: %q", ErrUnknownHotel, name)
		}
		if _, err := reg.Create(name, tiles, placement.Tile); err != nil {
			return placement, err
		}
		placement.Survivor = name
	case PlacementExtend, PlacementMerge:
		if err := reg.Extend(placement.Survivor, tiles...); err != nil {
			return placement, err
		}
		for _, defunct := range placement.Absorbed {
			if _, err := reg.Absorb(placement.Survivor, defunct); err != nil {
				return placement, err
			}
		}
	}

	// Nothing below can fail.
	if placement.Kind == PlacementMerge {
		g.payMergeBonuses(placement)
	}
	g.Registry = reg

	p.removeTile(placement.Tile)
	g.Placed = insertSorted(g.Placed, placement.Tile)
	if placement.Kind == PlacementLone {
		g.Loose = insertSorted(g.Loose, placement.Tile)
	} else {
		g.Loose = slices.DeleteFunc(g.Loose, func(id board.TileID) bool {
			return slices.Contains(placement.Joined, id)
		})
	}
	g.Pending = nil
	g.Phase = PhaseBuyShares

	g.record(LogTilePlacement, p.ID, map[string]any{"tile": placement.Label, "kind": placement.Kind},
		"%s places %s", p.Name, placement.Label)

	switch placement.Kind {
	case PlacementFound:
		g.record(LogHotelEstablish, p.ID, map[string]any{"hotel": name, "size": len(tiles)},
			"%s establishes %s", p.Name, name)
	case PlacementMerge:
		g.record(LogHotelMerge, p.ID, map[string]any{"survivor": placement.Survivor, "absorbed": placement.Absorbed},
			"%s absorbs %v", placement.Survivor, placement.Absorbed)
		g.beginMerge(placement)
	}
	return placement, nil
}

func insertSorted(ids []board.TileID, id board.TileID) []board.TileID {
	i, found := slices.BinarySearch(ids, id)
	if found {
		return ids
	}
	return slices.Insert(ids, i, id)
}

/*
 * Merger
 */

func (g *Game) defunctChains(placement Placement) []DefunctChain {
	out := make([]DefunctChain, 0, len(placement.Absorbed))
	for _, name := range placement.Absorbed {
		size := placement.Sizes[name]
		out = append(out, DefunctChain{Name: name, Size: size, Price: Price(name, size)})
	}
	return out
}

func (g *Game) payMergeBonuses(placement Placement) {
	for _, d := range g.defunctChains(placement) {
		g.payBonuses(d.Name, d.Size)
	}
}

func (g *Game) beginMerge(placement Placement) {
	g.Merge.Begin(placement.Survivor, g.defunctChains(placement), g.seatingFromTurnHolder(), g.SharesOf)
	if g.Merge.InProgress() {
		g.Phase = PhaseResolveMerge
	}
}

// ResolveMerge applies one shareholder's decision on the defunct chain being
// resolved. Sold shares fetch the chain's pre-merge price. Exchanges trade two
// defunct shares for one survivor share while the bank has them; the rest
// of the holding is given up.
func (g *Game) ResolveMerge(playerID string, decision Decision) error {
	if g.Over() {
		return ErrGameOver
	}
	active, chain, ok := g.Merge.Active()
	if !ok {
		return ErrNoMergeInProgress
	}
	if active != playerID {
		return ErrNotYourDecision
	}
	p, ok := g.Player(playerID)
	if !ok {
		return ErrUnknownPlayer
	}

	held := p.Shares[chain.Name]
	survivor := g.Merge.Survivor

	switch decision {
	case DecisionSell:
		revenue := held * chain.Price
		p.Balance += revenue
		delete(p.Shares, chain.Name)
		g.record(LogStockSell, p.ID, map[string]any{"hotel": chain.Name, "shares": held, "revenue": revenue},
			"%s sells %d %s for %d", p.Name, held, chain.Name, revenue)
	case DecisionKeep:
		g.record(LogStockKeep, p.ID, map[string]any{"hotel": chain.Name, "shares": held},
			"%s keeps %d %s", p.Name, held, chain.Name)
	case DecisionExchange:
		if held < 2 {
			return ErrCannotExchange
		}
		granted := min(held/2, g.Available(survivor))
		p.Shares[survivor] += granted
		delete(p.Shares, chain.Name)
		g.record(LogStockExchange, p.ID, map[string]any{"hotel": chain.Name, "survivor": survivor, "shares": held, "granted": granted},
			"%s exchanges %d %s for %d %s", p.Name, held, chain.Name, granted, survivor)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDecision, decision)
	}

	g.Merge.Advance(g.SharesOf)
	if !g.Merge.InProgress() {
		g.Phase = PhaseBuyShares
	}
	return nil
}

/*
 * Market
 */

// BuyShares buys from the bank at current prices. The whole order is checked
// before anything changes hands.
func (g *Game) BuyShares(playerID string, order map[HotelName]int) error {
	p, err := g.requireTurn(playerID)
	if err != nil {
		return err
	}
	switch g.Phase {
	case PhaseBuyShares:
	case PhaseResolveMerge:
		return ErrMergeInProgress
	case PhasePlaceTile:
		if len(g.PlayableTiles(p)) > 0 {
			return ErrMustPlaceTile
		}
	default:
		return ErrWrongPhase
	}

	for name := range order {
		if !name.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownHotel, name)
		}
	}

	total, cost := 0, 0
	for _, name := range HotelNames {
		n, ok := order[name]
		if !ok || n == 0 {
			continue
		}
		if n < 0 {
			return fmt.Errorf("%w: %d %s", ErrInvalidOrder, n, name)
		}
		if !g.Registry.IsActive(name) {
			return fmt.Errorf("%w: %s", ErrUnknownChain, name)
		}
		if n > g.Available(name) {
			return fmt.Errorf("%w: %d %s requested, %d left", ErrShareCapExceeded, n, name, g.Available(name))
		}
		total += n
		cost += n * g.PriceOf(name)
	}
	if total == 0 {
		return ErrInvalidOrder
	}
	if g.Purchased+total > g.Rules.MaxPurchase {
		return fmt.Errorf("%w: %d of %d already bought", ErrPurchaseLimit, g.Purchased, g.Rules.MaxPurchase)
	}
	if cost > p.Balance {
		return fmt.Errorf("%w: costs %d, balance %d", ErrInsufficientFunds, cost, p.Balance)
	}

	for _, name := range HotelNames {
		n := order[name]
		if n <= 0 {
			continue
		}
		price := g.PriceOf(name)
		p.Shares[name] += n
		p.Balance -= n * price
		g.record(LogStockPurchase, p.ID, map[string]any{"hotel": name, "shares": n, "price": price},
			"%s buys %d %s at %d", p.Name, n, name, price)
	}
	g.Purchased += total
	return nil
}

/*
 * Turn end
 */

// EndTurn discards tiles that can never be placed, refills the hand and
// passes the turn. Skipping placement is only allowed with no playable tile.
func (g *Game) EndTurn(playerID string) error {
	p, err := g.requireTurn(playerID)
	if err != nil {
		return err
	}
	switch g.Phase {
	case PhaseResolveMerge:
		return ErrMergeInProgress
	case PhasePlaceTile:
		if len(g.PlayableTiles(p)) > 0 {
			return ErrMustPlaceTile
		}
	}

	g.discardDeadTiles(p)
	g.refill(p)

	g.Pending = nil
	g.Purchased = 0
	g.CurrentPlayer = (g.CurrentPlayer + 1) % len(g.Players)
	g.Turn++
	g.Phase = PhasePlaceTile
	return nil
}

// discardDeadTiles drops tiles that would merge two safe chains. Safe chains
// never shrink, so those tiles stay unplayable for the rest of the game.
func (g *Game) discardDeadTiles(p *Player) {
	loose := g.looseSet()
	for _, id := range slices.Clone(p.Hand) {
		if ResolvePlacement(g.Registry, loose, id, 0).Block == BlockSafeMerge {
			p.removeTile(id)
			g.record(LogTileDiscard, p.ID, map[string]any{"tile": id.String()},
				"%s discards dead tile %s", p.Name, id)
		}
	}
}

// DeclareGameEnd pays out every active chain, sells all shares back to the
// bank and ranks the players. The turn holder places first unless no tile in
// their hand can be played.
func (g *Game) DeclareGameEnd(playerID string) error {
	p, err := g.requireTurn(playerID)
	if err != nil {
		return err
	}
	switch g.Phase {
	case PhaseResolveMerge:
		return ErrMergeInProgress
	case PhasePlaceTile:
		if len(g.PlayableTiles(p)) > 0 {
			return ErrMustPlaceTile
		}
	}
	if !g.CanEndGame() {
		return ErrGameNotOver
	}

	for _, c := range g.Registry.Chains() {
		g.payBonuses(c.Name, c.Size())
	}
	for _, pl := range g.Players {
		for _, name := range HotelNames {
			n := pl.Shares[name]
			if n == 0 {
				continue
			}
			price := g.PriceOf(name)
			pl.Balance += n * price
			delete(pl.Shares, name)
			if price > 0 {
				g.record(LogStockSell, pl.ID, map[string]any{"hotel": name, "shares": n, "revenue": n * price},
					"%s sells %d %s for %d", pl.Name, n, name, n*price)
			}
		}
	}

	g.Standings = make([]Standing, 0, len(g.Players))
	for _, pl := range g.Players {
		g.Standings = append(g.Standings, Standing{PlayerID: pl.ID, Name: pl.Name, Balance: pl.Balance})
	}
	slices.SortStableFunc(g.Standings, func(a, b Standing) int { return b.Balance - a.Balance })
	g.Winner = g.Standings[0].PlayerID

	g.Pending = nil
	g.Phase = PhaseGameOver
	g.record(LogGameEnd, p.ID, map[string]any{"winner": g.Winner},
		"%s ends the game, %s wins with %d", p.Name, g.Standings[0].Name, g.Standings[0].Balance)
	return nil
}
