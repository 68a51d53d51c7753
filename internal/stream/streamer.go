package stream

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/absgex/internal/service"
)

// ProfileProvider computes profiles for the streamer. The service layer
// satisfies this; tests substitute a stub.
type ProfileProvider interface {
	Profile(ctx context.Context, req service.Request) (*service.Result, error)
}

// Streamer periodically recomputes the profile for every subscribed
// underlying and broadcasts the result. Computation rides the service's
// chain cache, so a tick is cheap when the chain is still fresh.
type Streamer struct {
	hub      *Hub
	provider ProfileProvider
	interval time.Duration
	logger   *zap.Logger
}

func NewStreamer(hub *Hub, provider ProfileProvider, interval time.Duration, logger *zap.Logger) *Streamer {
	return &Streamer{
		hub:      hub,
		provider: provider,
		interval: interval,
		logger:   logger,
	}
}

// Run starts the streaming loop. Call in a goroutine.
// Returns when context is cancelled.
func (s *Streamer) Run(ctx context.Context) {
	// Align first tick to top of second for predictable timing
	now := time.Now()
	nextSecond := now.Truncate(time.Second).Add(time.Second)

	select {
	case <-ctx.Done():
		s.logger.Info("streamer cancelled during alignment")
		return
	case <-time.After(time.Until(nextSecond)):
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("streamer started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("streamer stopping")
			return

		case <-ticker.C:
			s.broadcastTick(ctx)
		}
	}
}

// broadcastTick recomputes and pushes one update per active underlying.
func (s *Streamer) broadcastTick(ctx context.Context) {
	groups := s.hub.ActiveGroups()
	if len(groups) == 0 {
		return
	}

	for _, underlying := range groups {
		result, err := s.provider.Profile(ctx, service.Request{Underlying: underlying})
		if err != nil {
			s.logger.Warn("stream profile computation failed",
				zap.String("underlying", underlying),
				zap.Error(err),
			)
			continue
		}

		payload, err := json.Marshal(struct {
			Type string `json:"type"`
			*service.Result
		}{Type: "profile", Result: result})
		if err != nil {
			s.logger.Warn("stream payload encoding failed",
				zap.String("underlying", underlying),
				zap.Error(err),
			)
			continue
		}

		s.hub.Broadcast(underlying, payload)

		s.logger.Debug("broadcast profile",
			zap.String("underlying", underlying),
			zap.Int("strikes", len(result.Profile)),
		)
	}
}
