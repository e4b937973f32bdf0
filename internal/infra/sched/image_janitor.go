package sched

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"order-bridge/internal/infra/metrics"
)

// ImageJanitor periodically deletes downloaded images older than the
// retention period. Batches are long gone by then; the files are only
// kept for manual inspection.
type ImageJanitor struct {
	dir       string
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	log       *zerolog.Logger
}

func NewImageJanitor(dir string, retention, interval time.Duration, logger *zerolog.Logger) *ImageJanitor {
	if interval <= 0 {
		interval = time.Hour
	}
	l := logger.With().Str("component", "ImageJanitor").Logger()
	return &ImageJanitor{dir: dir, retention: retention, interval: interval, now: time.Now, log: &l}
}

func (j *ImageJanitor) Run(ctx context.Context) error {
	if j.retention <= 0 {
		j.log.Info().Msg("image retention disabled, janitor not started")
		return nil
	}
	j.log.Info().Dur("retention", j.retention).Msg("Starting image janitor")
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("Stopping image janitor")
			return ctx.Err()
		case <-ticker.C:
			n, err := j.Sweep(ctx)
			if err != nil {
				metrics.IncJanitorRun("error")
				j.log.Error().Err(err).Msg("image janitor error")
			} else {
				metrics.IncJanitorRun("ok")
			}
			if n > 0 {
				metrics.AddImagesPruned(n)
				j.log.Info().Int("count", n).Msg("old images removed")
			}
		}
	}
}

// Sweep removes regular files in dir modified before now-retention and
// returns how many were deleted. Subdirectories and temp files in flight
// are left alone.
func (j *ImageJanitor) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(j.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := j.now().Add(-j.retention)
	removed := 0
	var errs []error
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) == ".part" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed underneath us
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
