package router

import (
	"testing"

	"github.com/mohammed-shakir/pctile-server/internal/core/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		path string
		want Route
	}{
		{"/", Route{Kind: KindListDataSources}},
		{"", Route{Kind: KindListDataSources}},
		{"//", Route{Kind: KindListDataSources}},
		{"/lidar", Route{Kind: KindListLayers, DataSource: "lidar"}},
		{"/lidar/", Route{Kind: KindListLayers, DataSource: "lidar"}},
		{"/lidar/ground", Route{Kind: KindLayerInfo, DataSource: "lidar", Layer: "ground"}},
		{"//lidar//ground/", Route{Kind: KindLayerInfo, DataSource: "lidar", Layer: "ground"}},
		{"/lidar/ground/3/5/7", Route{
			Kind: KindTile, DataSource: "lidar", Layer: "ground",
			Tile: model.TileKey{Level: 3, Col: 5, Row: 7},
		}},
		{"/lidar/ground/0/0/4294967295", Route{
			Kind: KindTile, DataSource: "lidar", Layer: "ground",
			Tile: model.TileKey{Row: 4294967295},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := Parse(tt.path); got != tt.want {
				t.Fatalf("Parse(%q)=%+v want %+v", tt.path, got, tt.want)
			}
		})
	}
}

func TestParse_UnsupportedShapesAreNotFound(t *testing.T) {
	for _, path := range []string{
		"/a/b/c",
		"/a/b/1/2",
		"/a/b/1/2/3/4",
		"/a/b/c/d/e/f/g",
	} {
		got := Parse(path)
		if got.Kind != KindNotFound {
			t.Fatalf("Parse(%q).Kind=%v want not_found", path, got.Kind)
		}
		if got.Message != "not found: "+path {
			t.Fatalf("message=%q", got.Message)
		}
	}
}

func TestParse_BadRequests(t *testing.T) {
	for _, path := range []string{
		"/lidar/ground/x/0/0",
		"/lidar/ground/0/-1/0",
		"/lidar/ground/0/0/1.5",
		"/lidar/ground/0/0/4294967296",
		"/lidar/ground/+1/0/0",
		"/li-dar",
		"/lidar/gro%und",
		"/../ground",
		"/lidar/ground;drop/0/0/0",
	} {
		got := Parse(path)
		if got.Kind != KindBadRequest {
			t.Fatalf("Parse(%q).Kind=%v want bad_request", path, got.Kind)
		}
		if got.Message == "" {
			t.Fatalf("Parse(%q) has no message", path)
		}
	}
}

func TestKind_String(t *testing.T) {
	seen := map[string]bool{}
	for k := KindNotFound; k <= KindTile; k++ {
		s := k.String()
		if seen[s] {
			t.Fatalf("duplicate label %q", s)
		}
		seen[s] = true
	}
}
