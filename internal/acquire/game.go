package acquire

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"acquire-server/internal/board"
)

var ErrPlayerCount = errors.New("PLAYER_COUNT: Wrong number of players for a game")

type Rules struct {
	StartingBalance int `json:"startingBalance"`
	HandSize        int `json:"handSize"`
	MinPlayers      int `json:"minPlayers"`
	MaxPlayers      int `json:"maxPlayers"`
	ShareCap        int `json:"shareCap"`
	MaxPurchase     int `json:"maxPurchase"`
}

func DefaultRules() Rules {
	return Rules{
		StartingBalance: 6000,
		HandSize:        6,
		MinPlayers:      2,
		MaxPlayers:      6,
		ShareCap:        25,
		MaxPurchase:     3,
	}
}

type Phase string

const (
	PhasePlaceTile    Phase = "place_tile"
	PhaseResolveMerge Phase = "resolve_merge"
	PhaseBuyShares    Phase = "buy_shares"
	PhaseGameOver     Phase = "game_over"
)

type Player struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Balance int               `json:"balance"`
	Shares  map[HotelName]int `json:"shares"`
	Hand    []board.TileID    `json:"hand"`
}

func (p *Player) HasTile(id board.TileID) bool {
	return slices.Contains(p.Hand, id)
}

func (p *Player) removeTile(id board.TileID) {
	p.Hand = slices.DeleteFunc(p.Hand, func(t board.TileID) bool { return t == id })
}

// Seat is a player as handed over from the lobby.
type Seat struct {
	ID   string
	Name string
}

// PendingPlacement is the tile the turn holder is previewing. It carries no
// board effect until confirmed.
type PendingPlacement struct {
	PlayerID string       `json:"playerId"`
	Tile     board.TileID `json:"tile"`
	Swap     int          `json:"swap"`
}

type Standing struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Balance  int    `json:"balance"`
}

type Payout struct {
	PlayerID string    `json:"playerId"`
	Hotel    HotelName `json:"hotel"`
	Amount   int       `json:"amount"`
	Kind     string    `json:"kind"`
}

type Game struct {
	Id            string            `json:"id"`
	Rules         Rules             `json:"rules"`
	Players       []*Player         `json:"players"`
	CurrentPlayer int               `json:"currentPlayer"`
	Turn          int               `json:"turn"`
	Phase         Phase             `json:"phase"`
	Bag           *board.Bag        `json:"bag"`
	Loose         []board.TileID    `json:"loose"`
	Placed        []board.TileID    `json:"placed"`
	Registry      *Registry         `json:"chains"`
	Merge         MergeState        `json:"merge"`
	Pending       *PendingPlacement `json:"pending,omitempty"`
	Purchased     int               `json:"purchased"`
	Log           []LogEntry        `json:"log"`
	Standings     []Standing        `json:"standings,omitempty"`
	Winner        string            `json:"winner,omitempty"`

	rng           *rand.Rand
	now           func() time.Time
	randomSeating bool
}

type Option func(*Game)

func WithRules(r Rules) Option {
	return func(g *Game) { g.Rules = r }
}

func WithRand(rng *rand.Rand) Option {
	return func(g *Game) { g.rng = rng }
}

func WithClock(now func() time.Time) Option {
	return func(g *Game) { g.now = now }
}

// WithRandomSeating shuffles the seating order instead of keeping lobby order.
func WithRandomSeating() Option {
	return func(g *Game) { g.randomSeating = true }
}

// NewGame seats the players, shuffles the bag and deals every hand.
func NewGame(id string, seats []Seat, opts ...Option) (*Game, error) {
	g := &Game{
		Id:       id,
		Rules:    DefaultRules(),
		Phase:    PhasePlaceTile,
		Bag:      board.NewBag(),
		Registry: NewRegistry(),
		Merge:    MergeState{Stage: MergeIdle},
	}
	for _, opt := range opts {
		opt(g)
	}

	if len(seats) < g.Rules.MinPlayers || len(seats) > g.Rules.MaxPlayers {
		return nil, fmt.Errorf("%w: %d seated, %d-%d allowed", ErrPlayerCount, len(seats), g.Rules.MinPlayers, g.Rules.MaxPlayers)
	}

	for _, s := range seats {
		g.Players = append(g.Players, &Player{
			ID:      s.ID,
			Name:    s.Name,
			Balance: g.Rules.StartingBalance,
			Shares:  map[HotelName]int{},
			Hand:    []board.TileID{},
		})
	}
	if g.randomSeating {
		shuffle := rand.Shuffle
		if g.rng != nil {
			shuffle = g.rng.Shuffle
		}
		shuffle(len(g.Players), func(i, j int) {
			g.Players[i], g.Players[j] = g.Players[j], g.Players[i]
		})
	}

	g.Bag.Shuffle(g.rng)
	g.Deal()
	return g, nil
}

// Deal tops every hand up to the hand size.
func (g *Game) Deal() {
	for _, p := range g.Players {
		g.refill(p)
	}
}

func (g *Game) refill(p *Player) {
	if missing := g.Rules.HandSize - len(p.Hand); missing > 0 {
		p.Hand = append(p.Hand, g.Bag.Draw(missing)...)
	}
}

func (g *Game) clock() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now()
}

// Decode restores a stored game and checks it before handing it out.
func Decode(data []byte) (*Game, error) {
	var g Game
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptGame, err)
	}
	if g.Registry == nil {
		g.Registry = NewRegistry()
	}
	if g.Bag == nil {
		g.Bag = &board.Bag{}
	}
	if g.Merge.Stage == "" {
		g.Merge.Stage = MergeIdle
	}
	for _, p := range g.Players {
		if p != nil && p.Shares == nil {
			p.Shares = map[HotelName]int{}
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks that a game is internally consistent.
func (g *Game) Validate() error {
	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrCorruptGame, fmt.Sprintf(format, args...))
	}

	if len(g.Players) == 0 {
		return corrupt("no players")
	}
	if g.CurrentPlayer < 0 || g.CurrentPlayer >= len(g.Players) {
		return corrupt("current player %d out of range", g.CurrentPlayer)
	}
	if err := g.Registry.Validate(); err != nil {
		return corrupt("%v", err)
	}

	placed := make(map[board.TileID]bool, len(g.Placed))
	for _, id := range g.Placed {
		if !id.Valid() {
			return corrupt("placed tile %d off the board", int(id))
		}
		placed[id] = true
	}
	for _, c := range g.Registry.chains {
		for _, id := range c.Tiles {
			if !placed[id] {
				return corrupt("chain %s holds unplaced tile %s", c.Name, id)
			}
		}
	}
	for _, id := range g.Placed {
		if g.Bag.Contains(id) {
			return corrupt("placed tile %s still in the bag", id)
		}
	}
	for _, id := range g.Loose {
		if !placed[id] {
			return corrupt("loose tile %s not placed", id)
		}
		if c, ok := g.Registry.ChainAt(id); ok {
			return corrupt("loose tile %s is in %s", id, c.Name)
		}
	}

	for _, p := range g.Players {
		if p == nil {
			return corrupt("empty seat")
		}
		if p.Balance < 0 {
			return corrupt("player %s has negative balance", p.Name)
		}
		for name, n := range p.Shares {
			if !name.Valid() || n < 0 {
				return corrupt("player %s holds %d of %q", p.Name, n, name)
			}
		}
		for _, id := range p.Hand {
			if !id.Valid() || placed[id] || g.Bag.Contains(id) {
				return corrupt("player %s holds bad tile %d", p.Name, int(id))
			}
		}
	}
	for _, name := range HotelNames {
		if g.Issued(name) > g.Rules.ShareCap {
			return corrupt("%s has %d shares issued", name, g.Issued(name))
		}
	}

	if err := g.validateMerge(); err != nil {
		return corrupt("%v", err)
	}
	if g.Pending != nil {
		holder := g.TurnHolder()
		if g.Phase != PhasePlaceTile || g.Pending.PlayerID != holder.ID {
			return corrupt("pending placement held by %q in %s", g.Pending.PlayerID, g.Phase)
		}
		if !holder.HasTile(g.Pending.Tile) {
			return corrupt("pending tile %s not in %s's hand", g.Pending.Tile, holder.Name)
		}
	}
	return nil
}

func (g *Game) validateMerge() error {
	switch g.Phase {
	case PhasePlaceTile, PhaseResolveMerge, PhaseBuyShares, PhaseGameOver:
	default:
		return fmt.Errorf("unknown phase %q", g.Phase)
	}
	if g.Merge.Stage != MergeIdle && g.Merge.Stage != MergeResolving {
		return fmt.Errorf("unknown merge stage %q", g.Merge.Stage)
	}
	if g.Merge.InProgress() != (g.Phase == PhaseResolveMerge) {
		return fmt.Errorf("merge %s in phase %s", g.Merge.Stage, g.Phase)
	}
	if !g.Merge.InProgress() {
		return nil
	}

	if _, _, ok := g.Merge.Active(); !ok {
		return errors.New("merge resolving with nobody to decide")
	}
	if !g.Registry.IsActive(g.Merge.Survivor) {
		return fmt.Errorf("merge survivor %q not on the board", g.Merge.Survivor)
	}
	for _, d := range g.Merge.Remaining() {
		if !d.Name.Valid() || d.Name == g.Merge.Survivor || g.Registry.IsActive(d.Name) {
			return fmt.Errorf("defunct chain %q still on the board", d.Name)
		}
	}
	for _, ids := range [][]string{g.Merge.Queue, g.Merge.Order} {
		for _, id := range ids {
			if _, ok := g.Player(id); !ok {
				return fmt.Errorf("merge names unseated player %q", id)
			}
		}
	}
	return nil
}

func (g *Game) Over() bool {
	return g.Phase == PhaseGameOver
}

func (g *Game) Player(id string) (*Player, bool) {
	for _, p := range g.Players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (g *Game) TurnHolder() *Player {
	return g.Players[g.CurrentPlayer]
}

func (g *Game) SharesOf(playerID string, name HotelName) int {
	if p, ok := g.Player(playerID); ok {
		return p.Shares[name]
	}
	return 0
}

// Issued counts the shares of a name held by players, including kept shares
// of a defunct chain.
func (g *Game) Issued(name HotelName) int {
	total := 0
	for _, p := range g.Players {
		total += p.Shares[name]
	}
	return total
}

func (g *Game) Available(name HotelName) int {
	return max(0, g.Rules.ShareCap-g.Issued(name))
}

// PriceOf is the current share price; inactive names are worth nothing.
func (g *Game) PriceOf(name HotelName) int {
	return Price(name, g.Registry.SizeOf(name))
}

func (g *Game) IsPlaced(id board.TileID) bool {
	_, found := slices.BinarySearch(g.Placed, id)
	return found
}

func (g *Game) looseSet() map[board.TileID]bool {
	set := make(map[board.TileID]bool, len(g.Loose))
	for _, id := range g.Loose {
		set[id] = true
	}
	return set
}

// Resolve previews a tile against the current board.
func (g *Game) Resolve(tile board.TileID, swap int) Placement {
	return ResolvePlacement(g.Registry, g.looseSet(), tile, swap)
}

// seatingFromTurnHolder lists player ids starting at the turn holder.
func (g *Game) seatingFromTurnHolder() []string {
	order := make([]string, 0, len(g.Players))
	for i := range g.Players {
		order = append(order, g.Players[(g.CurrentPlayer+i)%len(g.Players)].ID)
	}
	return order
}

type Holding struct {
	PlayerID string `json:"playerId"`
	Shares   int    `json:"shares"`
}

// Shareholders lists holders of a chain by share count, largest first, ties
// in seating order.
func (g *Game) Shareholders(name HotelName) []Holding {
	var out []Holding
	for _, p := range g.Players {
		if n := p.Shares[name]; n > 0 {
			out = append(out, Holding{PlayerID: p.ID, Shares: n})
		}
	}
	slices.SortStableFunc(out, func(a, b Holding) int { return b.Shares - a.Shares })
	return out
}

// bonusPayouts splits the majority and minority bonuses of a chain at the
// given size. A sole holder takes both, a tie for first splits both and a tie
// for second splits the minority bonus.
func (g *Game) bonusPayouts(name HotelName, size int) []Payout {
	holders := g.Shareholders(name)
	if len(holders) == 0 {
		return nil
	}
	quote := QuoteFor(name, size)

	group := func(from []Holding) []Holding {
		end := 1
		for end < len(from) && from[end].Shares == from[0].Shares {
			end++
		}
		return from[:end]
	}

	var out []Payout
	first := group(holders)
	switch {
	case len(first) > 1:
		each := (quote.Majority + quote.Minority) / len(first)
		for _, h := range first {
			out = append(out, Payout{PlayerID: h.PlayerID, Hotel: name, Amount: each, Kind: "split"})
		}
	case len(holders) == 1:
		out = append(out, Payout{PlayerID: first[0].PlayerID, Hotel: name, Amount: quote.Majority + quote.Minority, Kind: "sole"})
	default:
		out = append(out, Payout{PlayerID: first[0].PlayerID, Hotel: name, Amount: quote.Majority, Kind: "majority"})
		second := group(holders[1:])
		each := quote.Minority / len(second)
		for _, h := range second {
			out = append(out, Payout{PlayerID: h.PlayerID, Hotel: name, Amount: each, Kind: "minority"})
		}
	}
	return out
}

func (g *Game) payBonuses(name HotelName, size int) []Payout {
	payouts := g.bonusPayouts(name, size)
	for _, pay := range payouts {
		p, _ := g.Player(pay.PlayerID)
		p.Balance += pay.Amount
		g.record(LogDividendPayment, p.ID, map[string]any{"hotel": name, "amount": pay.Amount, "kind": pay.Kind},
			"%s receives %d %s bonus for %s", p.Name, pay.Amount, pay.Kind, name)
	}
	return payouts
}

// PlayableTiles returns the tiles in a hand that could be confirmed now.
func (g *Game) PlayableTiles(p *Player) []board.TileID {
	loose := g.looseSet()
	var out []board.TileID
	for _, id := range p.Hand {
		if ResolvePlacement(g.Registry, loose, id, 0).Kind != PlacementBlocked {
			out = append(out, id)
		}
	}
	return out
}

// CanEndGame reports whether the turn holder may call the game: a chain has
// reached the end size, every chain is safe, or nobody can place any tile and
// the bag is empty.
func (g *Game) CanEndGame() bool {
	if g.Over() {
		return false
	}
	chains := g.Registry.Chains()
	if len(chains) > 0 {
		allSafe := true
		for _, c := range chains {
			if c.Size() >= EndGameSize {
				return true
			}
			allSafe = allSafe && c.Safe()
		}
		if allSafe {
			return true
		}
	}
	if g.Bag.Count() > 0 {
		return false
	}
	for _, p := range g.Players {
		if len(g.PlayableTiles(p)) > 0 {
			return false
		}
	}
	return true
}
