package acquire

import "acquire-server/internal/board"

type ClientState struct {
	GameID            string              `json:"gameId"`
	Phase             Phase               `json:"phase"`
	Turn              int                 `json:"turn"`
	CurrentPlayerID   string              `json:"currentPlayerId"`
	CurrentPlayerName string              `json:"currentPlayerName"`
	YourID            string              `json:"yourId"`
	IsYourTurn        bool                `json:"isYourTurn"`
	Balance           int                 `json:"balance"`
	Shares            map[HotelName]int   `json:"shares"`
	Hand              []HandTile          `json:"hand"`
	Board             []BoardTile         `json:"board"`
	Chains            []ChainState        `json:"chains"`
	AvailableNames    []HotelName         `json:"availableNames"`
	Players           []OtherPlayerState  `json:"players"`
	Merge             *MergeView          `json:"merge"` // nil outside a merger
	Pending           *Placement          `json:"pending"`
	PurchasedThisTurn int                 `json:"purchasedThisTurn"`
	BagCount          int                 `json:"bagCount"`
	CanEndGame        bool                `json:"canEndGame"`
	Standings         []Standing          `json:"standings,omitempty"`
	Winner            string              `json:"winner,omitempty"`
	RecentLog         []LogEntry          `json:"recentLog"`
	Prices            map[HotelName]Quote `json:"prices"`
}

type HandTile struct {
	Tile     board.TileID  `json:"tile"`
	Label    string        `json:"label"`
	Kind     PlacementKind `json:"kind"`
	Playable bool          `json:"playable"`
}

type BoardTile struct {
	Tile  board.TileID `json:"tile"`
	Label string       `json:"label"`
	Hotel HotelName    `json:"hotel,omitempty"`
	Home  bool         `json:"home"`
}

type ChainState struct {
	Name      HotelName `json:"name"`
	Tier      string    `json:"tier"`
	Size      int       `json:"size"`
	Safe      bool      `json:"safe"`
	Home      string    `json:"home"`
	Quote     Quote     `json:"quote"`
	Available int       `json:"available"`
	Majority  []string  `json:"majority"`
	Minority  []string  `json:"minority"`
}

type OtherPlayerState struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Balance    int               `json:"balance"`
	Shares     map[HotelName]int `json:"shares"`
	HandLength int               `json:"handLength"`
	IsTurn     bool              `json:"isTurn"`
}

type MergeView struct {
	Survivor       HotelName      `json:"survivor"`
	Defunct        DefunctChain   `json:"defunct"`
	Remaining      []DefunctChain `json:"remaining"`
	ActivePlayerID string         `json:"activePlayerId"`
	IsYourDecision bool           `json:"isYourDecision"`
	YourShares     int            `json:"yourShares"`
	CanExchange    bool           `json:"canExchange"`
}

const recentLogSize = 20

// GetClientState projects the game for one player. Hands of other players are
// reduced to a count. An unknown id yields a spectator view.
func (g *Game) GetClientState(playerID string) *ClientState {
	turnHolder := g.TurnHolder()
	me, seated := g.Player(playerID)

	state := &ClientState{
		GameID:            g.Id,
		Phase:             g.Phase,
		Turn:              g.Turn,
		CurrentPlayerID:   turnHolder.ID,
		CurrentPlayerName: turnHolder.Name,
		YourID:            playerID,
		IsYourTurn:        seated && me == turnHolder && !g.Over(),
		Shares:            map[HotelName]int{},
		Hand:              []HandTile{},
		Board:             g.boardTiles(),
		Chains:            g.chainStates(),
		AvailableNames:    g.Registry.AvailableNames(),
		Players:           []OtherPlayerState{},
		PurchasedThisTurn: g.Purchased,
		BagCount:          g.Bag.Count(),
		CanEndGame:        g.CanEndGame(),
		Standings:         g.Standings,
		Winner:            g.Winner,
		RecentLog:         g.RecentLog(recentLogSize),
		Prices:            map[HotelName]Quote{},
	}

	for _, name := range HotelNames {
		state.Prices[name] = QuoteFor(name, g.Registry.SizeOf(name))
	}

	if seated {
		state.Balance = me.Balance
		for name, n := range me.Shares {
			state.Shares[name] = n
		}
		loose := g.looseSet()
		for _, id := range me.Hand {
			kind := ResolvePlacement(g.Registry, loose, id, 0).Kind
			state.Hand = append(state.Hand, HandTile{
				Tile:     id,
				Label:    id.String(),
				Kind:     kind,
				Playable: kind != PlacementBlocked,
			})
		}
		if g.Pending != nil && g.Pending.PlayerID == playerID {
			pending := g.Resolve(g.Pending.Tile, g.Pending.Swap)
			state.Pending = &pending
		}
	}

	for _, p := range g.Players {
		if p == me {
			continue
		}
		state.Players = append(state.Players, GetOtherPlayerState(p, p == turnHolder))
	}

	if active, defunct, ok := g.Merge.Active(); ok {
		view := &MergeView{
			Survivor:       g.Merge.Survivor,
			Defunct:        defunct,
			Remaining:      g.Merge.Remaining(),
			ActivePlayerID: active,
			IsYourDecision: active == playerID,
		}
		if seated {
			view.YourShares = me.Shares[defunct.Name]
			view.CanExchange = view.YourShares >= 2
		}
		state.Merge = view
	}
	return state
}

func GetOtherPlayerState(p *Player, isTurn bool) OtherPlayerState {
	shares := make(map[HotelName]int, len(p.Shares))
	for name, n := range p.Shares {
		shares[name] = n
	}
	return OtherPlayerState{
		ID:         p.ID,
		Name:       p.Name,
		Balance:    p.Balance,
		Shares:     shares,
		HandLength: len(p.Hand),
		IsTurn:     isTurn,
	}
}

func (g *Game) boardTiles() []BoardTile {
	out := make([]BoardTile, 0, len(g.Placed))
	for _, id := range g.Placed {
		tile := BoardTile{Tile: id, Label: id.String()}
		if c, ok := g.Registry.ChainAt(id); ok {
			tile.Hotel = c.Name
			tile.Home = c.Home == id
		}
		out = append(out, tile)
	}
	return out
}

func (g *Game) chainStates() []ChainState {
	chains := g.Registry.Chains()
	out := make([]ChainState, 0, len(chains))
	for _, c := range chains {
		tier, _ := TierOf(c.Name)
		cs := ChainState{
			Name:      c.Name,
			Tier:      tier.String(),
			Size:      c.Size(),
			Safe:      c.Safe(),
			Home:      c.Home.String(),
			Quote:     QuoteFor(c.Name, c.Size()),
			Available: g.Available(c.Name),
			Majority:  []string{},
			Minority:  []string{},
		}
		for _, pay := range g.bonusPayouts(c.Name, c.Size()) {
			switch pay.Kind {
			case "minority":
				cs.Minority = append(cs.Minority, pay.PlayerID)
			default:
				cs.Majority = append(cs.Majority, pay.PlayerID)
			}
		}
		out = append(out, cs)
	}
	return out
}
