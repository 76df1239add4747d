package store_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/pctile-server/internal/core/model"
	"github.com/mohammed-shakir/pctile-server/internal/store"
	"github.com/mohammed-shakir/pctile-server/internal/store/storetest"
)

func openSample(t *testing.T, layers ...storetest.Layer) store.Handle {
	t.Helper()
	dir := t.TempDir()
	if len(layers) == 0 {
		layers = []storetest.Layer{storetest.SampleLayer("pts")}
	}
	path := storetest.Write(t, dir, "serp", layers...)
	h, err := store.SQLiteOpener{}.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestListDataSources(t *testing.T) {
	dir := t.TempDir()
	storetest.Write(t, dir, "alpha", storetest.SampleLayer("pts"))
	storetest.Write(t, dir, "beta")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "dir.gpkg"), 0o700); err != nil {
		t.Fatal(err)
	}

	got, err := store.Accessor{}.ListDataSources(dir)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	slices.Sort(got)
	if want := []string{"alpha", "beta"}; !slices.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestListDataSources_MissingRoot(t *testing.T) {
	_, err := store.Accessor{}.ListDataSources(filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestListLayers(t *testing.T) {
	h := openSample(t, storetest.SampleLayer("pts"), storetest.SampleLayer("more"))
	got, err := store.Accessor{}.ListLayers(context.Background(), h)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	slices.Sort(got)
	if want := []string{"more", "pts"}; !slices.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestLayerInfo(t *testing.T) {
	h := openSample(t)
	info, err := store.Accessor{}.LayerInfo(context.Background(), h, "serp", "pts")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if info.Database != "serp" || info.Table != "pts" || info.Version != model.SchemaVersion {
		t.Fatalf("identity fields: %+v", info)
	}
	wantData := orb.Bound{Min: orb.Point{-179.5, -89.5}, Max: orb.Point{179.5, 89.5}}
	if info.DataBounds != wantData {
		t.Fatalf("data bounds=%v want %v", info.DataBounds, wantData)
	}
	wantTile := orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}
	if info.TileBounds != wantTile {
		t.Fatalf("tile bounds=%v want %v", info.TileBounds, wantTile)
	}
	if info.NumColsL0 != 2 || info.NumRowsL0 != 1 {
		t.Fatalf("L0 grid=%dx%d want 2x1", info.NumColsL0, info.NumRowsL0)
	}
	if info.SRSID != 4326 || info.Description != "sample point cloud" || info.LastChange != "2015-06-01T12:00:00Z" {
		t.Fatalf("catalog fields: %+v", info)
	}
	var names []string
	for _, d := range info.Dimensions {
		names = append(names, d.Name)
	}
	if want := []string{"X", "Y", "Z"}; !slices.Equal(names, want) {
		t.Fatalf("dimension order=%v want %v", names, want)
	}
	if d := info.Dimensions[2]; d.Position != 3 || d.DataType != "double" || d.Maximum != 100 || d.Mean != 50 {
		t.Fatalf("dimension Z=%+v", d)
	}
}

func TestLayerInfo_MissingLayerIsNotFound(t *testing.T) {
	h := openSample(t)
	_, err := store.Accessor{}.LayerInfo(context.Background(), h, "serp", "nosuch")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestLayerInfo_MissingGridIsQueryError(t *testing.T) {
	l := storetest.SampleLayer("broken")
	l.NoMatrix = true
	h := openSample(t, l)
	_, err := store.Accessor{}.LayerInfo(context.Background(), h, "serp", "broken")
	if !store.IsQueryError(err) {
		t.Fatalf("err=%v want QueryError", err)
	}
	if errors.Is(err, store.ErrNotFound) {
		t.Fatal("malformed layer must not be reported as not found")
	}
}

func TestLayerInfo_UnsafeName(t *testing.T) {
	h := openSample(t)
	_, err := store.Accessor{}.LayerInfo(context.Background(), h, "serp", "pts' OR '1'='1")
	if !errors.Is(err, store.ErrBadRequest) {
		t.Fatalf("err=%v want ErrBadRequest", err)
	}
}

func TestTile_Existing(t *testing.T) {
	h := openSample(t)
	tile, err := store.Accessor{}.Tile(context.Background(), h, "pts", model.TileKey{Level: 0, Col: 0, Row: 0})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if tile.NumPoints != 3 || tile.ChildMask != 0b0101 {
		t.Fatalf("header=(%d,%d) want (3,5)", tile.NumPoints, tile.ChildMask)
	}
	if !bytes.Equal(tile.Data, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("payload=%x", tile.Data)
	}
}

func TestTile_AbsentIsNotAnError(t *testing.T) {
	h := openSample(t)
	tile, err := store.Accessor{}.Tile(context.Background(), h, "pts", model.TileKey{Level: 7, Col: 3, Row: 9})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !tile.IsAbsent() {
		t.Fatalf("got %+v want absent", tile)
	}
}

func TestTile_DuplicateRowsIsQueryError(t *testing.T) {
	l := storetest.SampleLayer("dup")
	l.Tiles = append(l.Tiles, storetest.Tile{Level: 0, Col: 0, Row: 0, NumPoints: 9, Data: []byte{9}})
	h := openSample(t, l)
	_, err := store.Accessor{}.Tile(context.Background(), h, "dup", model.TileKey{})
	if !store.IsQueryError(err) {
		t.Fatalf("err=%v want QueryError", err)
	}
}

func TestTile_UnknownLayerIsNotFound(t *testing.T) {
	h := openSample(t)
	_, err := store.Accessor{}.Tile(context.Background(), h, "gpkg_contents", model.TileKey{})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestTile_UnsafeNameNeverQueries(t *testing.T) {
	rec := &recordingHandle{}
	_, err := store.Accessor{}.Tile(context.Background(), rec, `pts"; DROP TABLE x; --`, model.TileKey{})
	if !errors.Is(err, store.ErrBadRequest) {
		t.Fatalf("err=%v want ErrBadRequest", err)
	}
	if len(rec.queries) != 0 {
		t.Fatalf("queries executed for unsafe name: %v", rec.queries)
	}
}

func TestOpen_RejectsNonGeoPackage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "junk.gpkg")
	if err := os.WriteFile(path, []byte("definitely not sqlite"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := (store.SQLiteOpener{}).Open(context.Background(), path); err == nil {
		t.Fatal("expected error opening non-geopackage file")
	}
}

func TestOpen_MissingFileIsNotFound(t *testing.T) {
	_, err := store.SQLiteOpener{}.Open(context.Background(), filepath.Join(t.TempDir(), "x.gpkg"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestValidIdent(t *testing.T) {
	for _, s := range []string{"pts", "Layer_01", "_x", "9"} {
		if !store.ValidIdent(s) {
			t.Errorf("ValidIdent(%q)=false want true", s)
		}
	}
	for _, s := range []string{"", "a-b", "a.b", "a b", `a"b`, "a'b", "é", "a;b"} {
		if store.ValidIdent(s) {
			t.Errorf("ValidIdent(%q)=true want false", s)
		}
	}
}
