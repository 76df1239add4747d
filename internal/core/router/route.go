package router

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/pctile-server/internal/core/model"
	"github.com/mohammed-shakir/pctile-server/internal/store"
)

type Kind int

const (
	KindNotFound Kind = iota
	KindBadRequest
	KindListDataSources
	KindListLayers
	KindLayerInfo
	KindTile
)

// String is also used as the route label on metrics and logs.
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindListDataSources:
		return "datasources"
	case KindListLayers:
		return "layers"
	case KindLayerInfo:
		return "layer_info"
	case KindTile:
		return "tile"
	default:
		return "not_found"
	}
}

// Route is a parsed request path.
type Route struct {
	Kind       Kind
	DataSource string
	Layer      string
	Tile       model.TileKey
	// Message explains NotFound and BadRequest routes.
	Message string
}

// Segments splits path on "/" dropping empty segments.
func Segments(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
}

// Parse maps a request path to a route by its segment count:
//
//	/                        list data sources
//	/{db}                    list layers
//	/{db}/{layer}            layer info
//	/{db}/{layer}/{L}/{X}/{Y} tile
//
// Any other shape is NotFound. Parse does no I/O.
func Parse(path string) Route {
	segs := Segments(path)
	switch len(segs) {
	case 0:
		return Route{Kind: KindListDataSources}
	case 1, 2, 5:
	default:
		return notFound(path)
	}

	rt := Route{DataSource: segs[0]}
	if !store.ValidIdent(rt.DataSource) {
		return badRequest("invalid data source name %q", rt.DataSource)
	}
	if len(segs) == 1 {
		rt.Kind = KindListLayers
		return rt
	}

	rt.Layer = segs[1]
	if !store.ValidIdent(rt.Layer) {
		return badRequest("invalid layer name %q", rt.Layer)
	}
	if len(segs) == 2 {
		rt.Kind = KindLayerInfo
		return rt
	}

	var coords [3]uint32
	for i, name := range [3]string{"level", "column", "row"} {
		v, err := strconv.ParseUint(segs[2+i], 10, 32)
		if err != nil {
			return badRequest("invalid %s %q: want a non-negative integer", name, segs[2+i])
		}
		coords[i] = uint32(v)
	}
	rt.Kind = KindTile
	rt.Tile = model.TileKey{Level: coords[0], Col: coords[1], Row: coords[2]}
	return rt
}

func notFound(path string) Route {
	return Route{Kind: KindNotFound, Message: "not found: " + path}
}

func badRequest(format string, args ...any) Route {
	return Route{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}
