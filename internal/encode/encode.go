// Package encode turns query results into HTTP responses.
//
// Encoding produces a Response value and does no I/O, so it can be built on
// a pool worker and written by the request goroutine.
package encode

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/pctile-server/internal/core/model"
	"github.com/mohammed-shakir/pctile-server/internal/tilewire"
)

const (
	ContentTypeJSON   = "application/json"
	ContentTypeBinary = "application/octet-stream"
	ContentTypeText   = "text/plain; charset=utf-8"
)

type Response struct {
	Status      int
	ContentType string
	ETag        string
	Body        []byte
}

// field order is alphabetical so output keys come out sorted
type dimensionJSON struct {
	DataType        string  `json:"datatype"`
	Description     string  `json:"description"`
	Maximum         float64 `json:"maximum"`
	Mean            float64 `json:"mean"`
	Minimum         float64 `json:"minimum"`
	Name            string  `json:"name"`
	OrdinalPosition int     `json:"ordinal_position"`
}

type layerInfoJSON struct {
	DataBBox    [4]float64      `json:"data_bbox"`
	Database    string          `json:"database"`
	Description string          `json:"description"`
	Dimensions  []dimensionJSON `json:"dimensions"`
	LastChange  string          `json:"last_change"`
	NumColsL0   int             `json:"num_cols_L0"`
	NumRowsL0   int             `json:"num_rows_L0"`
	Table       string          `json:"table"`
	TileBBox    [4]float64      `json:"tile_bbox"`
	Version     int             `json:"version"`
}

func bbox(b orb.Bound) [4]float64 {
	return [4]float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()}
}

// JSON encodes v with four-space indentation.
func JSON(status int, v any) (Response, error) {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return Response{}, fmt.Errorf("encode json: %w", err)
	}
	return Response{Status: status, ContentType: ContentTypeJSON, Body: b}, nil
}

// Names encodes a sorted copy of names as a JSON array.
func Names(names []string) (Response, error) {
	sorted := slices.Clone(names)
	if sorted == nil {
		sorted = []string{}
	}
	slices.Sort(sorted)
	return JSON(http.StatusOK, sorted)
}

func LayerInfo(info model.LayerInfo) (Response, error) {
	out := layerInfoJSON{
		DataBBox:    bbox(info.DataBounds),
		Database:    info.Database,
		Description: info.Description,
		Dimensions:  make([]dimensionJSON, 0, len(info.Dimensions)),
		LastChange:  info.LastChange,
		NumColsL0:   info.NumColsL0,
		NumRowsL0:   info.NumRowsL0,
		Table:       info.Table,
		TileBBox:    bbox(info.TileBounds),
		Version:     info.Version,
	}
	for _, d := range info.Dimensions {
		out.Dimensions = append(out.Dimensions, dimensionJSON{
			DataType:        d.DataType,
			Description:     d.Description,
			Maximum:         d.Maximum,
			Mean:            d.Mean,
			Minimum:         d.Minimum,
			Name:            d.Name,
			OrdinalPosition: d.Position,
		})
	}
	res, err := JSON(http.StatusOK, out)
	if err != nil {
		return Response{}, err
	}
	res.ETag = etag(res.Body)
	return res, nil
}

// Tile encodes t in the binary tile format. Absent tiles encode as an
// all-zero header with no payload.
func Tile(t model.Tile) Response {
	body := tilewire.Encode(t)
	return Response{
		Status:      http.StatusOK,
		ContentType: ContentTypeBinary,
		ETag:        etag(body),
		Body:        body,
	}
}

// Error builds a plain-text error response. msg is sent to the client as is.
func Error(status int, msg string) Response {
	if msg == "" {
		msg = http.StatusText(status)
	}
	return Response{Status: status, ContentType: ContentTypeText, Body: []byte(msg + "\n")}
}

func etag(b []byte) string {
	return `"` + strconv.FormatUint(xxhash.Sum64(b), 16) + `"`
}

// Write sends the response, answering 304 when the request's
// If-None-Match matches the ETag.
func (res Response) Write(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	if res.ETag != "" {
		h.Set("ETag", res.ETag)
		if r != nil && etagMatch(r.Header.Get("If-None-Match"), res.ETag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	if res.Status == 0 {
		res.Status = http.StatusOK
	}
	h.Set("Content-Type", res.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(res.Body)))
	if res.Status >= 400 {
		h.Set("X-Content-Type-Options", "nosniff")
	}
	w.WriteHeader(res.Status)
	_, _ = w.Write(res.Body)
}

func etagMatch(header, tag string) bool {
	if header == "" {
		return false
	}
	for _, t := range strings.Split(header, ",") {
		t = strings.TrimSpace(t)
		if t == "*" || strings.TrimPrefix(t, "W/") == tag {
			return true
		}
	}
	return false
}
