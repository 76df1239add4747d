// Package model defines core domain types shared across the service.
package model

import (
	"fmt"

	"github.com/paulmach/orb"
)

// SchemaVersion is reported in layer info responses.
const SchemaVersion = 4

type Dimension struct {
	Position    int
	Name        string
	DataType    string
	Description string
	Minimum     float64
	Mean        float64
	Maximum     float64
}

// LayerInfo describes one tile pyramid inside a data source.
type LayerInfo struct {
	Database    string
	Table       string
	Version     int
	DataBounds  orb.Bound
	TileBounds  orb.Bound
	Description string
	LastChange  string
	SRSID       int
	NumColsL0   int
	NumRowsL0   int
	Dimensions  []Dimension
}

// TileKey addresses one tile in a layer's pyramid.
type TileKey struct {
	Level uint32
	Col   uint32
	Row   uint32
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Level, k.Col, k.Row)
}

// Children returns the four candidate child keys at the next level, indexed
// by child-mask bit: SW, SE, NE, NW. Rows grow southward.
func (k TileKey) Children() [4]TileKey {
	l := k.Level + 1
	c, r := k.Col*2, k.Row*2
	return [4]TileKey{
		{Level: l, Col: c, Row: r + 1},
		{Level: l, Col: c + 1, Row: r + 1},
		{Level: l, Col: c + 1, Row: r},
		{Level: l, Col: c, Row: r},
	}
}

type Tile struct {
	NumPoints uint32
	ChildMask uint32
	Data      []byte
}

// Absent is the value returned for coordinates with no stored tile.
var Absent = Tile{}

func (t Tile) IsAbsent() bool {
	return t.NumPoints == 0 && t.ChildMask == 0 && len(t.Data) == 0
}

// HasChild reports whether bit i of the child mask is set.
func (t Tile) HasChild(i int) bool {
	return i >= 0 && i < 4 && t.ChildMask&(1<<uint(i)) != 0
}
