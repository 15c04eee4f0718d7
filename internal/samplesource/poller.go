// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package samplesource

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/smart-refresh/daemon/internal/log"
)

// PollInterval is the fixed sampling cadence.
const PollInterval = 100 * time.Millisecond

// RetryInterval is how often a failed-to-open segment is retried.
const RetryInterval = 5 * time.Second

// MangoHudSegmentName is the well-known shared-memory segment name.
const MangoHudSegmentName = "/mangohud-overlay"

// Source polls the shared-memory overlay on a fixed cadence and maintains
// the bounded rolling window. It never returns a fatal error from Run: a
// missing or unreadable segment simply marks the source unavailable and
// retries.
type Source struct {
	reader *ShmReader
	window *Window

	available atomic.Bool
}

// NewSource constructs a Source for the given segment name.
func NewSource(segmentName string) *Source {
	return &Source{
		reader: NewShmReader(segmentName),
		window: NewWindow(),
	}
}

// Window returns the underlying rolling window.
func (s *Source) Window() *Window { return s.window }

// Available reports whether the shared-memory segment is currently mapped.
func (s *Source) Available() bool { return s.available.Load() }

// MeanFps returns the current smoothed FPS value.
func (s *Source) MeanFps() float64 { return s.window.MeanFps() }

// Run polls at PollInterval until ctx is cancelled. Open failures are
// logged once per transition and retried at RetryInterval.
func (s *Source) Run(ctx context.Context) {
	logger := log.WithComponent("samplesource")

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var nextRetry time.Time

	for {
		select {
		case <-ctx.Done():
			_ = s.reader.Close()
			return
		case now := <-ticker.C:
			if !s.available.Load() {
				if now.Before(nextRetry) {
					continue
				}
				if err := s.reader.Open(); err != nil {
					if nextRetry.IsZero() {
						logger.Warn().Err(err).Msg("samplesource unavailable, will retry")
					}
					nextRetry = now.Add(RetryInterval)
					continue
				}
				s.available.Store(true)
				nextRetry = time.Time{}
				logger.Info().Msg("samplesource connected")
			}

			sample, err := s.reader.Read()
			if err != nil {
				s.available.Store(false)
				_ = s.reader.Close()
				logger.Warn().Err(err).Msg("samplesource read failed, will retry")
				nextRetry = now.Add(RetryInterval)
				continue
			}
			s.window.Push(sample)
		}
	}
}
