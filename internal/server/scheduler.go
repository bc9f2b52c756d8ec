package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/procurelens/marketintel/internal/research"
	"github.com/procurelens/marketintel/internal/storage"
)

// Scheduler fires watchlist runs on their cron schedules. One tick per hour;
// a Redis lock keeps multiple replicas from firing the same watchlist.
type Scheduler struct {
	Store  *storage.Store
	Cache  *storage.Cache
	Orch   *research.Orchestrator
	Logger *log.Logger
	Stop   chan struct{}
}

func NewScheduler(st *storage.Store, cache *storage.Cache, orch *research.Orchestrator) *Scheduler {
	return &Scheduler{
		Store:  st,
		Cache:  cache,
		Orch:   orch,
		Logger: log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
		Stop:   make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	lists, err := s.Store.ListWatchlists(ctx)
	if err != nil {
		s.Logger.Printf("list watchlists: %v", err)
		return
	}
	for _, w := range lists {
		if !isDue(w.CronSpec, w.LastRunAt) {
			continue
		}
		if s.Cache != nil {
			ok, _ := s.Cache.AcquireLock(ctx, "sched:"+w.ID, 2*time.Minute)
			if !ok {
				continue
			}
		}
		if err := s.Store.TouchWatchlist(ctx, w.ID); err != nil {
			s.Logger.Printf("touch watchlist %s: %v", w.ID, err)
			continue
		}

		go func(w storage.Watchlist) {
			// jitter to avoid stampedes
			time.Sleep(time.Duration(250+time.Now().UnixNano()%250) * time.Millisecond)
			req := research.ResearchRequest{
				Workspace:  w.Workspace,
				Market:     w.Market,
				Categories: w.Categories,
				Depth:      research.Depth(w.Depth),
				TimeWindow: w.TimeWindow,
			}
			if _, err := s.Orch.Execute(ctx, req); err != nil {
				s.Logger.Printf("watchlist %s run failed: %v", w.ID, err)
			}
		}(w)
	}
}

// isDue reports whether a watchlist with cronSpec should run now given its
// last run time. Supports "@daily", "@hourly" and 5-field cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// invalid spec behaves as @daily
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		return !expr.Next(*last).After(now)
	}
}
