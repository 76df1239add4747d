// Package storetest writes small tile-pyramid GeoPackage files for tests.
package storetest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/mohammed-shakir/pctile-server/internal/store"
)

type Tile struct {
	Level, Col, Row int
	NumPoints       int64
	ChildMask       int64
	Data            []byte
}

type Dimension struct {
	Position         int
	Name, Type, Desc string
	Min, Mean, Max   float64
}

type Layer struct {
	Name        string
	Description string
	LastChange  string
	SRSID       int
	DataBox     [4]float64
	TileBox     [4]float64
	ColsL0      int
	RowsL0      int
	Dimensions  []Dimension
	Tiles       []Tile
	// NoMatrix leaves the layer without grid metadata.
	NoMatrix bool
}

var schema = []string{
	`CREATE TABLE gpkg_contents (
		table_name TEXT NOT NULL PRIMARY KEY,
		data_type TEXT NOT NULL,
		identifier TEXT,
		description TEXT DEFAULT '',
		last_change TEXT,
		min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
		srs_id INTEGER)`,
	`CREATE TABLE gpkg_pctile_matrix_set (
		table_name TEXT NOT NULL PRIMARY KEY,
		srs_id INTEGER,
		min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE)`,
	`CREATE TABLE gpkg_pctile_matrix (
		table_name TEXT NOT NULL,
		zoom_level INTEGER NOT NULL,
		matrix_width INTEGER NOT NULL,
		matrix_height INTEGER NOT NULL)`,
	`CREATE TABLE gpkg_pctile_dimension_set (
		table_name TEXT NOT NULL,
		ordinal_position INTEGER NOT NULL,
		dimension_name TEXT NOT NULL,
		data_type TEXT,
		description TEXT,
		minimum DOUBLE, mean DOUBLE, maximum DOUBLE)`,
}

// Write creates dir/name.gpkg holding the given layers and returns its path.
func Write(tb testing.TB, dir, name string, layers ...Layer) string {
	tb.Helper()
	path := filepath.Join(dir, name+store.FileExt)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		tb.Fatalf("open %s: %v", path, err)
	}
	defer func() { _ = db.Close() }()

	exec := func(q string, args ...any) {
		tb.Helper()
		if _, err := db.Exec(q, args...); err != nil {
			tb.Fatalf("exec %q: %v", q, err)
		}
	}
	for _, q := range schema {
		exec(q)
	}
	for _, l := range layers {
		exec(`INSERT INTO gpkg_contents (table_name,data_type,identifier,description,last_change,min_x,min_y,max_x,max_y,srs_id)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			l.Name, "pctiles", l.Name, l.Description, l.LastChange,
			l.DataBox[0], l.DataBox[1], l.DataBox[2], l.DataBox[3], l.SRSID)
		if !l.NoMatrix {
			exec(`INSERT INTO gpkg_pctile_matrix_set (table_name,srs_id,min_x,min_y,max_x,max_y) VALUES (?,?,?,?,?,?)`,
				l.Name, l.SRSID, l.TileBox[0], l.TileBox[1], l.TileBox[2], l.TileBox[3])
			exec(`INSERT INTO gpkg_pctile_matrix (table_name,zoom_level,matrix_width,matrix_height) VALUES (?,0,?,?)`,
				l.Name, l.ColsL0, l.RowsL0)
		}
		for _, d := range l.Dimensions {
			exec(`INSERT INTO gpkg_pctile_dimension_set
				(table_name,ordinal_position,dimension_name,data_type,description,minimum,mean,maximum)
				VALUES (?,?,?,?,?,?,?,?)`,
				l.Name, d.Position, d.Name, d.Type, d.Desc, d.Min, d.Mean, d.Max)
		}
		exec(fmt.Sprintf(`CREATE TABLE "%s" (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_data BLOB,
			num_points INTEGER,
			child_mask INTEGER)`, l.Name))
		for _, t := range l.Tiles {
			exec(fmt.Sprintf(`INSERT INTO "%s" (zoom_level,tile_column,tile_row,tile_data,num_points,child_mask) VALUES (?,?,?,?,?,?)`, l.Name),
				t.Level, t.Col, t.Row, t.Data, t.NumPoints, t.ChildMask)
		}
	}
	return path
}

// CountingOpener wraps an Opener and records open and close calls.
type CountingOpener struct {
	Inner store.Opener

	mu     sync.Mutex
	opens  map[string]int
	closes map[string]int
	open   int
	peak   int
}

func (c *CountingOpener) Open(ctx context.Context, path string) (store.Handle, error) {
	inner := c.Inner
	if inner == nil {
		inner = store.SQLiteOpener{}
	}
	h, err := inner.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opens == nil {
		c.opens = map[string]int{}
		c.closes = map[string]int{}
	}
	c.opens[filepath.Base(path)]++
	c.open++
	if c.open > c.peak {
		c.peak = c.open
	}
	return &countingHandle{Handle: h, owner: c, name: filepath.Base(path)}, nil
}

func (c *CountingOpener) Opens(file string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens[file]
}

func (c *CountingOpener) Closes(file string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes[file]
}

// Peak is the highest number of simultaneously open handles observed.
func (c *CountingOpener) Peak() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

// OpenNow is the number of handles currently open.
func (c *CountingOpener) OpenNow() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

type countingHandle struct {
	store.Handle
	owner *CountingOpener
	name  string
}

func (h *countingHandle) Close() error {
	h.owner.mu.Lock()
	h.owner.closes[h.name]++
	h.owner.open--
	h.owner.mu.Unlock()
	return h.Handle.Close()
}

// SampleLayer is a two-level pyramid: one root tile with two children.
func SampleLayer(name string) Layer {
	return Layer{
		Name:        name,
		Description: "sample point cloud",
		LastChange:  "2015-06-01T12:00:00Z",
		SRSID:       4326,
		DataBox:     [4]float64{-179.5, -89.5, 179.5, 89.5},
		TileBox:     [4]float64{-180, -90, 180, 90},
		ColsL0:      2,
		RowsL0:      1,
		Dimensions: []Dimension{
			{Position: 2, Name: "Y", Type: "double", Desc: "latitude", Min: -89.5, Mean: 0, Max: 89.5},
			{Position: 1, Name: "X", Type: "double", Desc: "longitude", Min: -179.5, Mean: 0.5, Max: 179.5},
			{Position: 3, Name: "Z", Type: "double", Desc: "height", Min: 0, Mean: 50, Max: 100},
		},
		Tiles: []Tile{
			{Level: 0, Col: 0, Row: 0, NumPoints: 3, ChildMask: 0b0101, Data: []byte{0xde, 0xad, 0xbe, 0xef}},
			{Level: 0, Col: 1, Row: 0, NumPoints: 1, ChildMask: 0, Data: []byte{0x01}},
			{Level: 1, Col: 0, Row: 1, NumPoints: 2, ChildMask: 0, Data: []byte{0x0a, 0x0b}},
			{Level: 1, Col: 1, Row: 0, NumPoints: 1, ChildMask: 0, Data: []byte{0x0c}},
		},
	}
}
