package acquire

import (
	"slices"

	"acquire-server/internal/board"
)

type PlacementKind string

const (
	PlacementLone    PlacementKind = "lone"
	PlacementFound   PlacementKind = "found"
	PlacementExtend  PlacementKind = "extend"
	PlacementMerge   PlacementKind = "merge"
	PlacementBlocked PlacementKind = "blocked"
)

type BlockReason string

const (
	BlockSafeMerge BlockReason = "safe_merge"
	BlockNoName    BlockReason = "no_name_available"
)

// Placement describes what dropping a tile would do. It is computed without
// touching any state so the client can preview it before confirming.
type Placement struct {
	Tile     board.TileID   `json:"tile"`
	Label    string         `json:"label"`
	Kind     PlacementKind  `json:"kind"`
	Adjacent []board.TileID `json:"adjacent"`
	// Loose tiles pulled in with the new tile, including ones reached through
	// other loose tiles.
	Joined []board.TileID `json:"joined"`
	// Adjacent chains in the order they were found around the tile.
	Chains []HotelName `json:"chains"`
	// Pre-placement sizes of the adjacent chains.
	Sizes          map[HotelName]int `json:"sizes"`
	Survivor       HotelName         `json:"survivor,omitempty"`
	// Survivor's size once the tile, the joined loose tiles and every
	// absorbed chain are folded in.
	ResultSize     int               `json:"resultSize"`
	Absorbed       []HotelName       `json:"absorbed"`
	Tied           []HotelName       `json:"tied"`
	SafeChains     []HotelName       `json:"safeChains"`
	AvailableNames []HotelName       `json:"availableNames"`
	Block          BlockReason       `json:"block,omitempty"`
}

func (p Placement) Err() error {
	if p.Kind != PlacementBlocked {
		return nil
	}
	if p.Block == BlockNoName {
		return ErrNoNameAvailable
	}
	return ErrIllegalPlacement
}

// CanSwap reports whether the survivor was picked out of a size tie.
func (p Placement) CanSwap() bool {
	return p.Kind == PlacementMerge && len(p.Tied) >= 2
}

// ResolvePlacement classifies a tile drop against the current chains and the
// set of loose tiles. swap rotates the survivor through the chains tied for
// largest; it is ignored when there is no tie.
func ResolvePlacement(reg *Registry, loose map[board.TileID]bool, tile board.TileID, swap int) Placement {
	p := Placement{
		Tile:  tile,
		Label: tile.String(),
		Kind:  PlacementLone,
		Sizes: map[HotelName]int{},
	}

	placed := func(id board.TileID) bool {
		if loose[id] {
			return true
		}
		_, ok := reg.ChainAt(id)
		return ok
	}

	for _, n := range board.NeighborIDs(tile) {
		if placed(n) {
			p.Adjacent = append(p.Adjacent, n)
		}
	}

	group := flood(tile, func(id board.TileID) bool { return loose[id] })
	p.Joined = group[1:]
	slices.Sort(p.Joined)

	chains := reg.ChainsAdjacentTo(p.Adjacent)
	for _, c := range chains {
		p.Chains = append(p.Chains, c.Name)
		p.Sizes[c.Name] = c.Size()
		if c.Safe() {
			p.SafeChains = append(p.SafeChains, c.Name)
		}
	}

	switch {
	case len(chains) == 0 && len(p.Adjacent) == 0:
		p.Kind = PlacementLone
	case len(chains) == 0:
		p.AvailableNames = reg.AvailableNames()
		if len(p.AvailableNames) == 0 {
			p.Kind = PlacementBlocked
			p.Block = BlockNoName
		} else {
			p.Kind = PlacementFound
		}
	case len(chains) == 1:
		p.Kind = PlacementExtend
		p.Survivor = chains[0].Name
	case len(p.SafeChains) >= 2:
		p.Kind = PlacementBlocked
		p.Block = BlockSafeMerge
	default:
		p.Kind = PlacementMerge
		resolveSurvivor(&p, chains, swap)
	}

	switch p.Kind {
	case PlacementFound:
		p.ResultSize = 1 + len(p.Joined)
	case PlacementExtend, PlacementMerge:
		p.ResultSize = 1 + len(p.Joined)
		for _, name := range p.Chains {
			p.ResultSize += p.Sizes[name]
		}
	}
	return p
}

func resolveSurvivor(p *Placement, chains []*Chain, swap int) {
	largest := 0
	for _, c := range chains {
		largest = max(largest, c.Size())
	}
	for _, c := range chains {
		if c.Size() == largest {
			p.Tied = append(p.Tied, c.Name)
		}
	}

	if swap < 0 {
		swap = -swap
	}
	p.Survivor = p.Tied[swap%len(p.Tied)]

	absorbed := make([]*Chain, 0, len(chains)-1)
	for _, c := range chains {
		if c.Name != p.Survivor {
			absorbed = append(absorbed, c)
		}
	}
	slices.SortStableFunc(absorbed, func(a, b *Chain) int {
		return b.Size() - a.Size()
	})
	for _, c := range absorbed {
		p.Absorbed = append(p.Absorbed, c.Name)
	}
	if len(p.Tied) < 2 {
		p.Tied = nil
	}
}
