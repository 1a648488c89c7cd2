package acquire

import (
	"encoding/json"
	"fmt"
	"slices"

	"acquire-server/internal/board"

	"github.com/google/uuid"
)

// Chain is an active hotel: a named, connected group of at least two tiles.
type Chain struct {
	ID    string         `json:"id"`
	Name  HotelName      `json:"name"`
	Tiles []board.TileID `json:"tiles"`
	Home  board.TileID   `json:"home"`
}

func (c *Chain) Size() int {
	return len(c.Tiles)
}

func (c *Chain) Safe() bool {
	return len(c.Tiles) >= SafeSize
}

func (c *Chain) Contains(id board.TileID) bool {
	_, found := slices.BinarySearch(c.Tiles, id)
	return found
}

func (c *Chain) add(ids ...board.TileID) {
	for _, id := range ids {
		if i, found := slices.BinarySearch(c.Tiles, id); !found {
			c.Tiles = slices.Insert(c.Tiles, i, id)
		}
	}
}

// Registry is the set of chains currently on the board, kept in founding
// order. It owns the tile to chain mapping; loose tiles live elsewhere.
type Registry struct {
	chains []*Chain
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) MarshalJSON() ([]byte, error) {
	chains := r.chains
	if chains == nil {
		chains = []*Chain{}
	}
	return json.Marshal(chains)
}

func (r *Registry) UnmarshalJSON(data []byte) error {
	var chains []*Chain
	if err := json.Unmarshal(data, &chains); err != nil {
		return err
	}
	for _, c := range chains {
		if c == nil {
			return fmt.Errorf("%w: empty chain entry", ErrCorruptGame)
		}
		slices.Sort(c.Tiles)
	}
	r.chains = chains
	return nil
}

// Chains returns the active chains in founding order.
func (r *Registry) Chains() []*Chain {
	return slices.Clone(r.chains)
}

func (r *Registry) Len() int {
	return len(r.chains)
}

func (r *Registry) Chain(name HotelName) (*Chain, bool) {
	for _, c := range r.chains {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

func (r *Registry) ChainAt(id board.TileID) (*Chain, bool) {
	for _, c := range r.chains {
		if c.Contains(id) {
			return c, true
		}
	}
	return nil, false
}

// ChainsAdjacentTo returns the distinct chains owning any of the given
// tiles, in the order they are first found.
func (r *Registry) ChainsAdjacentTo(ids []board.TileID) []*Chain {
	var out []*Chain
	for _, id := range ids {
		c, ok := r.ChainAt(id)
		if ok && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// SizeOf is 0 for a name that is not on the board.
func (r *Registry) SizeOf(name HotelName) int {
	if c, ok := r.Chain(name); ok {
		return c.Size()
	}
	return 0
}

func (r *Registry) IsSafe(name HotelName) bool {
	return r.SizeOf(name) >= SafeSize
}

func (r *Registry) IsActive(name HotelName) bool {
	_, ok := r.Chain(name)
	return ok
}

// AvailableNames lists the hotel names not currently on the board.
func (r *Registry) AvailableNames() []HotelName {
	var names []HotelName
	for _, name := range HotelNames {
		if !r.IsActive(name) {
			names = append(names, name)
		}
	}
	return names
}

// Create founds a new chain. The home tile must be one of tiles.
func (r *Registry) Create(name HotelName, tiles []board.TileID, home board.TileID) (*Chain, error) {
	if !name.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHotel, name)
	}
	if r.IsActive(name) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateChainName, name)
	}
	for _, id := range tiles {
		if owner, ok := r.ChainAt(id); ok {
			return nil, fmt.Errorf("%w: %s is in %s", ErrTileAlreadyChained, id, owner.Name)
		}
	}

	c := &Chain{ID: uuid.NewString(), Name: name, Home: home}
	c.add(tiles...)
	if !c.Contains(home) {
		c.add(home)
	}
	r.chains = append(r.chains, c)
	return c, nil
}

// Extend adds tiles to a chain. Tiles already in it are ignored.
func (r *Registry) Extend(name HotelName, tiles ...board.TileID) error {
	c, ok := r.Chain(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChain, name)
	}
	for _, id := range tiles {
		if owner, ok := r.ChainAt(id); ok && owner != c {
			return fmt.Errorf("%w: %s is in %s", ErrTileAlreadyChained, id, owner.Name)
		}
	}
	c.add(tiles...)
	return nil
}

// Absorb moves every tile of the defunct chain into the survivor and takes
// the defunct chain off the board, freeing its name.
func (r *Registry) Absorb(survivor, defunct HotelName) (*Chain, error) {
	if survivor == defunct {
		return nil, fmt.Errorf("%w: %s cannot absorb itself", ErrUnknownChain, survivor)
	}
	s, ok := r.Chain(survivor)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, survivor)
	}
	d, ok := r.Chain(defunct)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, defunct)
	}
	s.add(d.Tiles...)
	r.chains = slices.DeleteFunc(r.chains, func(c *Chain) bool { return c == d })
	return s, nil
}

func (r *Registry) Remove(name HotelName) error {
	before := len(r.chains)
	r.chains = slices.DeleteFunc(r.chains, func(c *Chain) bool { return c.Name == name })
	if len(r.chains) == before {
		return fmt.Errorf("%w: %s", ErrUnknownChain, name)
	}
	return nil
}

func (r *Registry) Clone() *Registry {
	out := &Registry{chains: make([]*Chain, 0, len(r.chains))}
	for _, c := range r.chains {
		cp := *c
		cp.Tiles = slices.Clone(c.Tiles)
		out.chains = append(out.chains, &cp)
	}
	return out
}

// Validate checks the structural invariants: unique valid names, disjoint
// tile sets, at least two tiles per chain and every chain connected.
func (r *Registry) Validate() error {
	names := make(map[HotelName]bool)
	owners := make(map[board.TileID]HotelName)
	for _, c := range r.chains {
		if !c.Name.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownHotel, c.Name)
		}
		if names[c.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateChainName, c.Name)
		}
		names[c.Name] = true

		if c.Size() < 2 {
			return fmt.Errorf("chain %s has %d tiles", c.Name, c.Size())
		}
		for _, id := range c.Tiles {
			if !id.Valid() {
				return fmt.Errorf("chain %s: %w: %d", c.Name, board.ErrInvalidCoordinate, int(id))
			}
			if other, ok := owners[id]; ok {
				return fmt.Errorf("%w: %s is in %s and %s", ErrTileAlreadyChained, id, other, c.Name)
			}
			owners[id] = c.Name
		}
		if !c.Contains(c.Home) {
			return fmt.Errorf("chain %s: home tile %s not in chain", c.Name, c.Home)
		}
		if !connected(c.Tiles) {
			return fmt.Errorf("chain %s is not connected", c.Name)
		}
	}
	return nil
}

func connected(tiles []board.TileID) bool {
	if len(tiles) == 0 {
		return true
	}
	members := make(map[board.TileID]bool, len(tiles))
	for _, id := range tiles {
		members[id] = true
	}
	reached := flood(tiles[0], func(id board.TileID) bool { return members[id] })
	return len(reached) == len(tiles)
}

// flood returns every tile reachable from start through tiles accepted by
// include, start first.
func flood(start board.TileID, include func(board.TileID) bool) []board.TileID {
	seen := map[board.TileID]bool{start: true}
	out := []board.TileID{start}
	for i := 0; i < len(out); i++ {
		for _, n := range board.NeighborIDs(out[i]) {
			if !seen[n] && include(n) {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}
