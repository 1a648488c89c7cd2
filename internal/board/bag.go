package board

import (
	"math/rand"
	"slices"
)

// Bag holds the tiles that have not been dealt yet.
type Bag struct {
	Tiles []TileID `json:"tiles"`
}

func NewBag() *Bag {
	tiles := make([]TileID, 0, TileCount)
	for id := TileID(1); id <= TileCount; id++ {
		tiles = append(tiles, id)
	}
	return &Bag{Tiles: tiles}
}

func (b *Bag) Count() int {
	return len(b.Tiles)
}

// Draw takes up to n tiles off the top of the bag. It returns fewer when the
// bag runs out.
func (b *Bag) Draw(n int) (tiles []TileID) {
	for range n {
		if len(b.Tiles) == 0 {
			return
		}
		tile := b.Tiles[len(b.Tiles)-1]
		tiles = append(tiles, tile)
		b.Tiles = b.Tiles[:len(b.Tiles)-1]
	}
	return
}

func (b *Bag) Shuffle(rng *rand.Rand) {
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(b.Count(), func(i, j int) {
		b.Tiles[i], b.Tiles[j] = b.Tiles[j], b.Tiles[i]
	})
}

// Contains reports whether a tile is still undealt.
func (b *Bag) Contains(id TileID) bool {
	return slices.Contains(b.Tiles, id)
}
