package board

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	Columns   = 12
	Rows      = 9
	TileCount = Columns * Rows

	rowLetters = "ABCDEFGHI"
)

var ErrInvalidCoordinate = errors.New("INVALID_COORDINATE: Coordinate is off the board")

// TileID is the linear identity of a tile, 1..108, numbered down each column.
type TileID int

func (id TileID) Valid() bool {
	return id >= 1 && id <= TileCount
}

func (id TileID) Coordinate() Coordinate {
	return ToCoordinate(id)
}

func (id TileID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("tile(%d)", int(id))
	}
	return ToCoordinate(id).String()
}

type Coordinate struct {
	Col int    `json:"col"`
	Row string `json:"row"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%d%s", c.Col, c.Row)
}

func (c Coordinate) Valid() bool {
	return c.Col >= 1 && c.Col <= Columns && rowIndex(c.Row) >= 0
}

// ToCoordinate maps a tile id onto the board. The caller guarantees 1..108.
func ToCoordinate(id TileID) Coordinate {
	n := int(id) - 1
	return Coordinate{
		Col: n/Rows + 1,
		Row: string(rowLetters[n%Rows]),
	}
}

func ToTileID(col int, row string) (TileID, error) {
	idx := rowIndex(row)
	if idx < 0 || col < 1 || col > Columns {
		return 0, fmt.Errorf("%w: %d%s", ErrInvalidCoordinate, col, row)
	}
	return TileID((col-1)*Rows + idx + 1), nil
}

func (c Coordinate) TileID() (TileID, error) {
	return ToTileID(c.Col, c.Row)
}

// ParseCoordinate accepts the board label form used on tiles, e.g. "5C" or "12i".
func ParseCoordinate(label string) (Coordinate, error) {
	label = strings.ToUpper(strings.TrimSpace(label))
	if len(label) < 2 {
		return Coordinate{}, fmt.Errorf("%w: %q", ErrInvalidCoordinate, label)
	}

	col, err := strconv.Atoi(label[:len(label)-1])
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: %q", ErrInvalidCoordinate, label)
	}

	c := Coordinate{Col: col, Row: label[len(label)-1:]}
	if !c.Valid() {
		return Coordinate{}, fmt.Errorf("%w: %q", ErrInvalidCoordinate, label)
	}
	return c, nil
}

// Neighbors returns the orthogonal neighbours that lie on the board, in the
// order left, right, up, down. Corners have 2, edges 3, interior cells 4.
func Neighbors(c Coordinate) []Coordinate {
	idx := rowIndex(c.Row)
	if idx < 0 {
		return nil
	}

	out := make([]Coordinate, 0, 4)
	if c.Col > 1 {
		out = append(out, Coordinate{Col: c.Col - 1, Row: c.Row})
	}
	if c.Col < Columns {
		out = append(out, Coordinate{Col: c.Col + 1, Row: c.Row})
	}
	if idx > 0 {
		out = append(out, Coordinate{Col: c.Col, Row: string(rowLetters[idx-1])})
	}
	if idx < Rows-1 {
		out = append(out, Coordinate{Col: c.Col, Row: string(rowLetters[idx+1])})
	}
	return out
}

// NeighborIDs is Neighbors expressed in tile ids.
func NeighborIDs(id TileID) []TileID {
	if !id.Valid() {
		return nil
	}
	coords := Neighbors(ToCoordinate(id))
	ids := make([]TileID, 0, len(coords))
	for _, c := range coords {
		n, _ := c.TileID()
		ids = append(ids, n)
	}
	return ids
}

func rowIndex(row string) int {
	if len(row) != 1 {
		return -1
	}
	return strings.IndexByte(rowLetters, row[0])
}
