package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mohammed-shakir/pctile-server/internal/core/config"
	"github.com/mohammed-shakir/pctile-server/internal/core/observability"
	"github.com/mohammed-shakir/pctile-server/internal/encode"
	"github.com/mohammed-shakir/pctile-server/internal/logger"
	"github.com/mohammed-shakir/pctile-server/internal/pool"
	"github.com/mohammed-shakir/pctile-server/internal/store"
)

// Submitter runs a task on a worker that owns a data source slot.
type Submitter interface {
	Submit(ctx context.Context, task pool.Task) error
}

type service struct {
	logger *slog.Logger
	root   string
	acc    store.Accessor
}

// Handler serves the tile API for every path under cfg.RootDir.
func Handler(log *slog.Logger, cfg config.Config, sub Submitter) http.HandlerFunc {
	s := &service{logger: log, root: cfg.RootDir}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rt := Parse(r.URL.Path)
		ctx := logger.WithRoute(r.Context(), rt.Kind.String())

		var res encode.Response
		switch rt.Kind {
		case KindNotFound:
			res = encode.Error(http.StatusNotFound, rt.Message)
		case KindBadRequest:
			res = encode.Error(http.StatusBadRequest, rt.Message)
		default:
			res = s.submit(ctx, cfg.RequestTimeout, sub, rt)
		}

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		res.Write(sw, r)

		dur := time.Since(start)
		observability.ObserveHTTP(r.Method, rt.Kind.String(), sw.code, dur.Seconds())
		log.LogAttrs(ctx, levelFor(sw.code), "request served",
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.code),
			slog.Int("bytes", len(res.Body)),
			slog.Duration("duration", dur),
		)
	}
}

func (s *service) submit(ctx context.Context, timeout time.Duration, sub Submitter, rt Route) encode.Response {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var res encode.Response
	err := sub.Submit(ctx, func(ctx context.Context, slot *store.Slot) {
		res = s.serve(ctx, slot, rt)
	})
	switch {
	case err == nil:
		return res
	case errors.Is(err, pool.ErrPanic):
		return encode.Error(http.StatusInternalServerError, "")
	case errors.Is(err, pool.ErrClosed):
		return encode.Error(http.StatusServiceUnavailable, "server shutting down")
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.WarnContext(ctx, "request expired in admission queue")
		return encode.Error(http.StatusServiceUnavailable, "server busy")
	default:
		// client went away before a worker picked the request up
		return encode.Error(http.StatusServiceUnavailable, "")
	}
}

// serve runs on a pool worker.
func (s *service) serve(ctx context.Context, slot *store.Slot, rt Route) encode.Response {
	if rt.Kind == KindListDataSources {
		names, err := s.acc.ListDataSources(s.root)
		if err != nil {
			s.logger.ErrorContext(ctx, "list data sources", "err", err)
			return encode.Error(http.StatusInternalServerError, "")
		}
		res, err := encode.Names(names)
		return s.encoded(ctx, res, err)
	}

	h, err := slot.Resolve(ctx, rt.DataSource)
	if err != nil {
		return s.failure(ctx, slot, err, "database not found: "+rt.DataSource)
	}

	switch rt.Kind {
	case KindListLayers:
		names, err := s.acc.ListLayers(ctx, h)
		if err != nil {
			return s.failure(ctx, slot, err, "")
		}
		res, err := encode.Names(names)
		return s.encoded(ctx, res, err)
	case KindLayerInfo:
		info, err := s.acc.LayerInfo(ctx, h, rt.DataSource, rt.Layer)
		if err != nil {
			return s.failure(ctx, slot, err, "layer not found: "+rt.Layer)
		}
		res, err := encode.LayerInfo(info)
		return s.encoded(ctx, res, err)
	case KindTile:
		tile, err := s.acc.Tile(ctx, h, rt.Layer, rt.Tile)
		if err != nil {
			return s.failure(ctx, slot, err, "layer not found: "+rt.Layer)
		}
		return encode.Tile(tile)
	}
	return encode.Error(http.StatusNotFound, "")
}

func (s *service) encoded(ctx context.Context, res encode.Response, err error) encode.Response {
	if err != nil {
		s.logger.ErrorContext(ctx, "encode response", "err", err)
		return encode.Error(http.StatusInternalServerError, "")
	}
	return res
}

// failure maps an error to a response. Query failures and timeouts drop the
// slot's handle so the next request reopens the data source.
func (s *service) failure(ctx context.Context, slot *store.Slot, err error, notFound string) encode.Response {
	switch {
	case ctx.Err() != nil:
		slot.Invalidate()
		s.logger.WarnContext(ctx, "query timed out", "err", err)
		return encode.Error(http.StatusGatewayTimeout, "query timed out")
	case errors.Is(err, store.ErrBadRequest):
		return encode.Error(http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return encode.Error(http.StatusNotFound, notFound)
	case store.IsQueryError(err):
		slot.Invalidate()
		s.logger.ErrorContext(ctx, "query failed", "err", err)
		return encode.Error(http.StatusInternalServerError, "")
	default:
		s.logger.ErrorContext(ctx, "request failed", "err", err)
		return encode.Error(http.StatusInternalServerError, "")
	}
}

func levelFor(code int) slog.Level {
	switch {
	case code >= 500:
		return slog.LevelError
	case code >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
