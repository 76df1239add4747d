package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/mohammed-shakir/pctile-server/internal/core/httpclient"
	"github.com/mohammed-shakir/pctile-server/internal/crawl"
)

type Config struct {
	TargetURL       string
	DataSource      string
	Layer           string
	Concurrency     int
	MaxLevel        int
	OutputPrefix    string
	RequestTimeout  time.Duration
	AppendTimestamp bool
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8090", "Tile server base URL")
	flag.StringVar(&cfg.DataSource, "db", "", "Data source name")
	flag.StringVar(&cfg.Layer, "layer", "", "Layer name")
	flag.IntVar(&cfg.Concurrency, "concurrency", 8, "Concurrent requests")
	flag.IntVar(&cfg.MaxLevel, "max-level", -1, "Deepest level to fetch (-1 = all)")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/crawl", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.BoolVar(&cfg.AppendTimestamp, "append-ts", true, "Append timestamp to output prefix")
	flag.Parse()
	return cfg
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg := loadConfig()
	if cfg.DataSource == "" || cfg.Layer == "" {
		log.Printf("both -db and -layer are required")
		return 2
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Printf("mkdir results: %v", err)
		return 1
	}
	prefix := cfg.OutputPrefix
	if cfg.AppendTimestamp {
		prefix = fmt.Sprintf("%s_%s", prefix, time.Now().UTC().Format("20060102_150405Z"))
	}

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Printf("open csv: %v", err)
		return 1
	}
	defer func() { _ = csvFile.Close() }()
	csvWriter := csv.NewWriter(csvFile)
	_ = csvWriter.Write(csvHeader)

	c := &crawl.Crawler{
		BaseURL:     cfg.TargetURL,
		Client:      httpclient.NewOutbound(cfg.RequestTimeout),
		Concurrency: cfg.Concurrency,
		MaxLevel:    cfg.MaxLevel,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep := &tally{
		Target:     cfg.TargetURL,
		DataSource: cfg.DataSource,
		Layer:      cfg.Layer,
		Workers:    cfg.Concurrency,
		Started:    time.Now().UTC(),
	}
	log.Printf("crawl start target=%s db=%s layer=%s conc=%d max-level=%d",
		cfg.TargetURL, cfg.DataSource, cfg.Layer, cfg.Concurrency, cfg.MaxLevel)

	runErr := c.Run(ctx, cfg.DataSource, cfg.Layer, func(s crawl.Sample) {
		rep.add(s)
		_ = csvWriter.Write(csvRow(s))
	})
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		log.Printf("csv flush: %v", err)
	}
	rep.finish(time.Now())

	if b, err := json.MarshalIndent(rep, "", "  "); err == nil {
		if err := os.WriteFile(filepath.Clean(jsonPath), b, 0o600); err != nil {
			log.Printf("write summary: %v", err)
		}
	}
	for _, ls := range rep.Levels {
		log.Printf("level %d: tiles=%d absent=%d points=%d p50=%.1fms p99=%.1fms",
			ls.Level, ls.Tiles, ls.Absent, ls.Points, ls.P50, ls.P99)
	}
	log.Printf("done: total=%d err=%d p50=%.1fms p95=%.1fms p99=%.1fms; wrote %s and %s",
		rep.Requests, rep.Failed, rep.Overall.P50, rep.Overall.P95, rep.Overall.P99, jsonPath, csvPath)

	if runErr != nil {
		log.Printf("crawl aborted: %v", runErr)
		return 1
	}
	return 0
}
