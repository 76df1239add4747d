package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mohammed-shakir/pctile-server/internal/core/observability"
)

// Slot caches the most recently used data source handle of one worker.
// It must only be touched by the goroutine that owns it.
type Slot struct {
	root   string
	opener Opener
	logger *slog.Logger

	name   string
	handle Handle
}

func NewSlot(root string, opener Opener, logger *slog.Logger) *Slot {
	if opener == nil {
		opener = SQLiteOpener{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Slot{root: root, opener: opener, logger: logger}
}

// Resolve returns an open handle for the named data source, reusing the
// cached one when the name matches.
func (s *Slot) Resolve(ctx context.Context, name string) (Handle, error) {
	if s.handle != nil && s.name == name {
		return s.handle, nil
	}
	if err := checkIdent("data source", name); err != nil {
		return nil, err
	}
	s.Invalidate()

	path := filepath.Join(s.root, name+FileExt)
	h, err := s.opener.Open(ctx, path)
	if err != nil {
		s.logger.DebugContext(ctx, "open data source failed", "name", name, "err", err)
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("open data source %q: %w", name, ctxErr)
		}
		return nil, fmt.Errorf("%w: data source %q: %w", ErrNotFound, name, err)
	}
	observability.IncStoreOpen()
	observability.AddOpenHandles(1)

	s.name = name
	s.handle = h
	return h, nil
}

// Name returns the cached data source name, or "" when empty.
func (s *Slot) Name() string {
	if s.handle == nil {
		return ""
	}
	return s.name
}

// Invalidate closes and clears the cached handle. Safe on an empty slot.
func (s *Slot) Invalidate() {
	if s.handle == nil {
		s.name = ""
		return
	}
	if err := s.handle.Close(); err != nil {
		s.logger.Warn("close data source", "name", s.name, "err", err)
	}
	observability.AddOpenHandles(-1)
	s.handle = nil
	s.name = ""
}

func (s *Slot) Close() { s.Invalidate() }
