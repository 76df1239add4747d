// Package store reads tile-pyramid GeoPackage data sources.
//
// The Accessor is stateless and runs queries against a Handle supplied by the
// caller; handle lifetime is managed per worker by Slot.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/pctile-server/internal/core/model"
	"github.com/mohammed-shakir/pctile-server/internal/core/observability"
)

const dataTypePCTiles = "pctiles"

var errMultipleRows = errors.New("multiple rows")

type Accessor struct{}

// ListDataSources returns the names of the data source files in root, in
// directory enumeration order.
func (Accessor) ListDataSources(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read root %s: %w", root, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		n := e.Name()
		if !strings.HasSuffix(n, FileExt) || len(n) == len(FileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(n, FileExt))
	}
	return names, nil
}

// ListLayers returns every table name in the data source catalog.
func (Accessor) ListLayers(ctx context.Context, h Handle) ([]string, error) {
	defer observeQuery("list_layers", time.Now())

	rows, err := h.QueryContext(ctx, "SELECT table_name FROM gpkg_contents")
	if err != nil {
		return nil, queryErr("list layers", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, queryErr("list layers", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("list layers", err)
	}
	return out, nil
}

// LayerInfo reads the catalog, tile grid and dimension metadata of a layer.
// A layer missing from the catalog is ErrNotFound; a catalogued layer with
// missing grid metadata is a QueryError.
func (Accessor) LayerInfo(ctx context.Context, h Handle, database, layer string) (model.LayerInfo, error) {
	if err := checkIdent("layer", layer); err != nil {
		return model.LayerInfo{}, err
	}
	defer observeQuery("layer_info", time.Now())

	info := model.LayerInfo{
		Database:   database,
		Table:      layer,
		Version:    model.SchemaVersion,
		Dimensions: []model.Dimension{},
	}

	var (
		bb          nullBound
		desc, stamp sql.NullString
		srs         sql.NullInt64
	)
	found, err := scanOne(ctx, h,
		"SELECT min_x,min_y,max_x,max_y,description,last_change,srs_id FROM gpkg_contents WHERE data_type=? AND table_name=?",
		[]any{dataTypePCTiles, layer},
		&bb.minX, &bb.minY, &bb.maxX, &bb.maxY, &desc, &stamp, &srs)
	if err != nil {
		return model.LayerInfo{}, queryErr("layer catalog", err)
	}
	if !found {
		return model.LayerInfo{}, fmt.Errorf("%w: layer %q", ErrNotFound, layer)
	}
	info.DataBounds = bb.bound()
	info.Description = desc.String
	info.LastChange = stamp.String
	info.SRSID = int(srs.Int64)

	var tb nullBound
	found, err = scanOne(ctx, h,
		"SELECT min_x,min_y,max_x,max_y FROM gpkg_pctile_matrix_set WHERE table_name=?",
		[]any{layer},
		&tb.minX, &tb.minY, &tb.maxX, &tb.maxY)
	if err == nil && !found {
		err = errors.New("no tile matrix set row")
	}
	if err != nil {
		return model.LayerInfo{}, queryErr("layer matrix set", err)
	}
	info.TileBounds = tb.bound()

	found, err = scanOne(ctx, h,
		"SELECT matrix_width,matrix_height FROM gpkg_pctile_matrix WHERE table_name=? AND zoom_level=0",
		[]any{layer},
		&info.NumColsL0, &info.NumRowsL0)
	if err == nil && !found {
		err = errors.New("no level 0 tile matrix row")
	}
	if err != nil {
		return model.LayerInfo{}, queryErr("layer matrix", err)
	}

	dims, err := dimensions(ctx, h, layer)
	if err != nil {
		return model.LayerInfo{}, queryErr("layer dimensions", err)
	}
	info.Dimensions = dims
	return info, nil
}

func dimensions(ctx context.Context, h Handle, layer string) ([]model.Dimension, error) {
	rows, err := h.QueryContext(ctx,
		"SELECT ordinal_position,dimension_name,data_type,description,minimum,mean,maximum "+
			"FROM gpkg_pctile_dimension_set WHERE table_name=? ORDER BY ordinal_position",
		layer)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []model.Dimension{}
	for rows.Next() {
		var (
			d            model.Dimension
			dtype, desc  sql.NullString
			lo, mean, hi sql.NullFloat64
		)
		if err := rows.Scan(&d.Position, &d.Name, &dtype, &desc, &lo, &mean, &hi); err != nil {
			return nil, err
		}
		d.DataType = dtype.String
		d.Description = desc.String
		d.Minimum, d.Mean, d.Maximum = lo.Float64, mean.Float64, hi.Float64
		out = append(out, d)
	}
	return out, rows.Err()
}

// Tile fetches one tile. Coordinates with no row yield model.Absent.
func (Accessor) Tile(ctx context.Context, h Handle, layer string, key model.TileKey) (model.Tile, error) {
	if err := checkIdent("layer", layer); err != nil {
		return model.Tile{}, err
	}
	defer observeQuery("tile", time.Now())

	var n int
	if _, err := scanOne(ctx, h,
		"SELECT COUNT(*) FROM gpkg_contents WHERE data_type=? AND table_name=?",
		[]any{dataTypePCTiles, layer}, &n); err != nil {
		return model.Tile{}, queryErr("tile catalog", err)
	}
	if n == 0 {
		return model.Tile{}, fmt.Errorf("%w: layer %q", ErrNotFound, layer)
	}

	// layer passed checkIdent above
	q := fmt.Sprintf(`SELECT tile_data,num_points,child_mask FROM "%s" WHERE zoom_level=? AND tile_column=? AND tile_row=?`, layer)

	var (
		data         []byte
		points, mask int64
	)
	found, err := scanOne(ctx, h, q, []any{key.Level, key.Col, key.Row}, &data, &points, &mask)
	if err != nil {
		return model.Tile{}, queryErr("tile "+key.String(), err)
	}
	if !found {
		return model.Absent, nil
	}
	if !fitsUint32(points) || !fitsUint32(mask) {
		return model.Tile{}, queryErr("tile "+key.String(),
			fmt.Errorf("header out of range: num_points=%d child_mask=%d", points, mask))
	}
	observability.AddTileBytes(len(data))
	return model.Tile{NumPoints: uint32(points), ChildMask: uint32(mask), Data: data}, nil
}

// scanOne scans at most one row into dest. More than one row is an error.
func scanOne(ctx context.Context, h Handle, query string, args []any, dest ...any) (bool, error) {
	rows, err := h.QueryContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return false, rows.Err()
	}
	if err := rows.Scan(dest...); err != nil {
		return false, err
	}
	if rows.Next() {
		return false, errMultipleRows
	}
	return true, rows.Err()
}

type nullBound struct {
	minX, minY, maxX, maxY sql.NullFloat64
}

func (b nullBound) bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.minX.Float64, b.minY.Float64},
		Max: orb.Point{b.maxX.Float64, b.maxY.Float64},
	}
}

func fitsUint32(v int64) bool {
	return v >= 0 && v <= math.MaxUint32
}

func observeQuery(op string, start time.Time) {
	observability.ObserveStoreQuery(op, time.Since(start).Seconds())
}
