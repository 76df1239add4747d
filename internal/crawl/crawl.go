// Package crawl walks a layer's tile pyramid over HTTP, following child masks
// from the level-0 grid down.
package crawl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/pctile-server/internal/core/model"
	"github.com/mohammed-shakir/pctile-server/internal/tilewire"
)

// Sample is the outcome of one tile request.
type Sample struct {
	Key       model.TileKey
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	Bytes     int
	NumPoints uint32
	ChildMask uint32
	Err       error
}

type Crawler struct {
	BaseURL     string
	Client      *http.Client
	Concurrency int
	// MaxLevel stops descent below this level; negative means no limit.
	MaxLevel int
}

// grid is the part of the layer info response the crawler needs.
type grid struct {
	Cols int `json:"num_cols_L0"`
	Rows int `json:"num_rows_L0"`
}

// Run fetches every reachable tile of db/layer, calling visit for each
// request. visit is called from one goroutine at a time. Tile request
// failures are reported through visit and do not stop the crawl.
func (c *Crawler) Run(ctx context.Context, db, layer string, visit func(Sample)) error {
	g, err := c.grid(ctx, db, layer)
	if err != nil {
		return err
	}

	frontier := make([]model.TileKey, 0, g.Cols*g.Rows)
	for col := range g.Cols {
		for row := range g.Rows {
			frontier = append(frontier, model.TileKey{Col: uint32(col), Row: uint32(row)})
		}
	}

	var mu sync.Mutex
	for level := 0; len(frontier) > 0; level++ {
		var next []model.TileKey
		eg, ectx := errgroup.WithContext(ctx)
		eg.SetLimit(max(c.Concurrency, 1))
		for _, key := range frontier {
			eg.Go(func() error {
				s := c.fetch(ectx, db, layer, key)
				mu.Lock()
				defer mu.Unlock()
				visit(s)
				if s.Err != nil || (c.MaxLevel >= 0 && level >= c.MaxLevel) {
					return nil
				}
				t := model.Tile{ChildMask: s.ChildMask}
				for i, child := range key.Children() {
					if t.HasChild(i) {
						next = append(next, child)
					}
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		frontier = next
	}
	return nil
}

func (c *Crawler) grid(ctx context.Context, db, layer string) (grid, error) {
	body, status, err := c.get(ctx, c.url(db, layer))
	if err != nil {
		return grid{}, fmt.Errorf("layer info: %w", err)
	}
	if status != http.StatusOK {
		return grid{}, fmt.Errorf("layer info: status %d: %s", status, strings.TrimSpace(string(body)))
	}
	var g grid
	if err := json.Unmarshal(body, &g); err != nil {
		return grid{}, fmt.Errorf("decode layer info: %w", err)
	}
	if g.Cols < 1 || g.Rows < 1 {
		return grid{}, fmt.Errorf("layer info: empty level-0 grid %dx%d", g.Cols, g.Rows)
	}
	return g, nil
}

func (c *Crawler) fetch(ctx context.Context, db, layer string, key model.TileKey) Sample {
	s := Sample{Key: key, Timestamp: time.Now()}
	body, status, err := c.get(ctx, c.url(db, layer, key.String()))
	s.Latency = time.Since(s.Timestamp)
	s.Status = status
	s.Bytes = len(body)
	if err != nil {
		s.Err = err
		return s
	}
	if status != http.StatusOK {
		s.Err = fmt.Errorf("status=%d", status)
		return s
	}
	t, err := tilewire.Decode(body)
	if err != nil {
		s.Err = err
		return s
	}
	s.NumPoints, s.ChildMask = t.NumPoints, t.ChildMask
	return s
}

func (c *Crawler) url(parts ...string) string {
	u := strings.TrimRight(c.BaseURL, "/")
	for _, p := range parts {
		u += "/" + strings.Trim(p, "/")
	}
	return u
}

func (c *Crawler) get(ctx context.Context, target string) ([]byte, int, error) {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}
