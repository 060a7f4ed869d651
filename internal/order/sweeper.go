package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-inventory/internal/logger"
)

// Lock is held by the one instance allowed to sweep.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type expirer interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Sweeper periodically expires reservations past their checkout window.
// With a Lock, only the instance holding it sweeps.
type Sweeper struct {
	Service  expirer
	Lock     Lock
	Interval time.Duration
	Logger   *logger.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewSweeper(svc *OrderService, lock Lock, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Sweeper{Service: svc, Lock: lock, Interval: interval, Logger: log, stop: make(chan struct{})}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		s.Logger.LogProcess("SWEEPER", fmt.Sprintf("Started, interval %s", s.Interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs one sweep if this instance holds the lock. It reports
// whether a sweep ran.
func (s *Sweeper) RunOnce(ctx context.Context) bool {
	if s.Lock != nil {
		ok, err := s.Lock.Acquire(ctx)
		if err != nil {
			s.Logger.Warn("SWEEPER", fmt.Sprintf("lock unavailable: %v", err))
			return false
		}
		if !ok {
			return false
		}
	}
	if _, err := s.Service.SweepExpired(ctx); err != nil {
		s.Logger.Error("SWEEPER", err.Error())
	}
	return true
}

// Stop ends the loop and gives up the lock.
func (s *Sweeper) Stop() {
	close(s.stop)
	s.wg.Wait()
	if s.Lock != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.Lock.Release(ctx); err != nil {
			s.Logger.Warn("SWEEPER", fmt.Sprintf("release lock: %v", err))
		}
	}
	s.Logger.LogProcess("SWEEPER", "Stopped")
}
