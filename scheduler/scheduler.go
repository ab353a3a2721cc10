package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gt_housing/config"
	"gt_housing/resolver"
)

// Scheduler periodically reloads the resolver's listing cache. Other
// sessions and the nightly scrape pipeline mutate the shared datastore;
// a fresh cache keeps the duplicate pre-check honest.
type Scheduler struct {
	cfg      *config.SchedulerConfig
	resolver *resolver.Resolver
	cron     *cron.Cron
	ticker   *time.Ticker
	stopCh   chan struct{}
}

func New(cfg *config.SchedulerConfig, res *resolver.Resolver) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		resolver: res,
		cron:     cron.New(),
		stopCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.RefreshCron != "" {
		log.Printf("Starting cache refresh with cron: %s", s.cfg.RefreshCron)
		_, err := s.cron.AddFunc(s.cfg.RefreshCron, func() {
			s.refresh(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
		return nil
	}

	if s.cfg.RefreshInterval > 0 {
		log.Printf("Starting cache refresh with interval: %s", s.cfg.RefreshInterval)
		s.ticker = time.NewTicker(s.cfg.RefreshInterval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.refresh(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
		return nil
	}

	log.Println("No refresh schedule configured, cache loads once at startup")
	return nil
}

func (s *Scheduler) refresh(ctx context.Context) {
	if err := s.resolver.Load(ctx); err != nil {
		log.Printf("Warning: cache refresh failed: %v", err)
		return
	}
	log.Printf("Cache refreshed: %d listings", s.resolver.CachedCount())
}

func (s *Scheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
	<-s.cron.Stop().Done()
}
