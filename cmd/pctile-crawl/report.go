package main

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/mohammed-shakir/pctile-server/internal/crawl"
)

var csvHeader = []string{"timestamp", "latency_ms", "status", "error", "tile", "points", "child_mask", "bytes"}

type latencies struct {
	P50 float64 `json:"p50_ms"`
	P95 float64 `json:"p95_ms"`
	P99 float64 `json:"p99_ms"`
}

type levelStats struct {
	Level  uint32 `json:"level"`
	Tiles  int64  `json:"tiles"`
	Absent int64  `json:"absent"`
	Points uint64 `json:"points"`
	latencies

	ms []float64
}

// tally accumulates crawl samples into the summary report.
type tally struct {
	Target     string        `json:"target"`
	DataSource string        `json:"db"`
	Layer      string        `json:"layer"`
	Workers    int           `json:"concurrency"`
	Started    time.Time     `json:"start"`
	Finished   time.Time     `json:"end"`
	Elapsed    float64       `json:"duration_sec"`
	Requests   int64         `json:"total"`
	Failed     int64         `json:"errors"`
	Bytes      int64         `json:"bytes"`
	RPS        float64       `json:"throughput_rps"`
	Overall    latencies     `json:"overall"`
	Levels     []*levelStats `json:"levels"`
}

func (t *tally) level(l uint32) *levelStats {
	for len(t.Levels) <= int(l) {
		t.Levels = append(t.Levels, &levelStats{Level: uint32(len(t.Levels))})
	}
	return t.Levels[l]
}

func (t *tally) add(s crawl.Sample) {
	t.Requests++
	t.Bytes += int64(s.Bytes)
	if s.Err != nil {
		t.Failed++
		return
	}
	ls := t.level(s.Key.Level)
	ls.Tiles++
	ls.Points += uint64(s.NumPoints)
	if s.NumPoints == 0 && s.ChildMask == 0 {
		ls.Absent++
	}
	ls.ms = append(ls.ms, millis(s.Latency))
}

func (t *tally) finish(end time.Time) {
	t.Finished = end.UTC()
	t.Elapsed = end.Sub(t.Started).Seconds()
	if t.Elapsed > 0 {
		t.RPS = float64(t.Requests) / t.Elapsed
	}
	var all []float64
	for _, ls := range t.Levels {
		ls.latencies = summarize(ls.ms)
		all = append(all, ls.ms...)
	}
	t.Overall = summarize(all)
}

func summarize(ms []float64) latencies {
	slices.Sort(ms)
	return latencies{P50: percentile(ms, 50), P95: percentile(ms, 95), P99: percentile(ms, 99)}
}

// percentile returns the nearest-rank value of sorted.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(n)))
	return sorted[min(max(rank, 1), n)-1]
}

func millis(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

func csvRow(s crawl.Sample) []string {
	errMsg := ""
	if s.Err != nil {
		errMsg = s.Err.Error()
	}
	return []string{
		s.Timestamp.UTC().Format(time.RFC3339Nano),
		fmt.Sprintf("%.3f", millis(s.Latency)),
		strconv.Itoa(s.Status),
		errMsg,
		s.Key.String(),
		strconv.FormatUint(uint64(s.NumPoints), 10),
		strconv.FormatUint(uint64(s.ChildMask), 10),
		strconv.Itoa(s.Bytes),
	}
}
