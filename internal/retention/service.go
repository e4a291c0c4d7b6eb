// Package retention runs the scheduled maintenance pass: expired
// memories are purged and topic weights decay so stale interests fade.
package retention

import (
	"context"
	"fmt"
	"log"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/KofiRusu/neonhub-go/internal/config"
	"github.com/KofiRusu/neonhub-go/internal/store"
)

type Service struct {
	engine   *store.Engine
	schedule string
	factor   float64
	cron     *rcron.Cron
	now      func() time.Time
}

func NewService(cfg *config.Config, engine *store.Engine) *Service {
	return &Service{
		engine:   engine,
		schedule: cfg.RetentionSchedule(),
		factor:   cfg.DecayFactor(),
		now:      time.Now,
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.cron = rcron.New(rcron.WithSeconds())

	if _, err := s.cron.AddFunc(s.schedule, s.runOnce); err != nil {
		return fmt.Errorf("register retention schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	log.Printf("[retention] scheduled %q (decay factor %.3f)", s.schedule, s.factor)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	log.Printf("[retention] stopped")
}

// RunOnce executes a maintenance pass immediately.
func (s *Service) RunOnce() (purged, decayed int64, err error) {
	purged, err = s.engine.PurgeExpiredMemories(s.now().UTC())
	if err != nil {
		return 0, 0, fmt.Errorf("purge memories: %w", err)
	}
	decayed, err = s.engine.DecayTopics(s.factor)
	if err != nil {
		return purged, 0, fmt.Errorf("decay topics: %w", err)
	}
	return purged, decayed, nil
}

func (s *Service) runOnce() {
	purged, decayed, err := s.RunOnce()
	if err != nil {
		log.Printf("[retention] pass failed: %v", err)
		return
	}
	log.Printf("[retention] purged %d memories, decayed %d topics", purged, decayed)
}
