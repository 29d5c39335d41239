package worker

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/northcart/reminder-engine/internal/domain"
	"github.com/northcart/reminder-engine/internal/pkg/distlock"
	"github.com/northcart/reminder-engine/internal/service/reminder"
)

// ReminderScheduler drives the reminder task runner on a fixed cadence.
// One scan per rule kind per tick, each guarded by a distributed lock so
// overlapping deployments never run the same kind concurrently. The
// engine itself takes no lock; this is where that operating invariant is
// enforced.
type ReminderScheduler struct {
	runner   *reminder.TaskRunner
	db       *sql.DB
	redis    *redis.Client
	interval time.Duration
	lockTTL  time.Duration
	kinds    []domain.RuleKind

	totalRuns   int64
	totalErrors int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewReminderScheduler creates the scheduler. redisClient may be nil, in
// which case locking falls back to Postgres advisory locks.
func NewReminderScheduler(runner *reminder.TaskRunner, db *sql.DB, redisClient *redis.Client, interval time.Duration) *ReminderScheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &ReminderScheduler{
		runner:   runner,
		db:       db,
		redis:    redisClient,
		interval: interval,
		lockTTL:  10 * time.Minute,
		kinds:    domain.AllRuleKinds,
	}
}

// SetKinds restricts the scheduler to a subset of rule kinds.
func (s *ReminderScheduler) SetKinds(kinds []domain.RuleKind) { s.kinds = kinds }

// SetLockTTL overrides the scan lock's TTL.
func (s *ReminderScheduler) SetLockTTL(ttl time.Duration) {
	if ttl > 0 {
		s.lockTTL = ttl
	}
}

// Start begins the scan loop.
func (s *ReminderScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	log.Printf("[ReminderScheduler] Starting, interval=%s kinds=%d", s.interval, len(s.kinds))

	s.wg.Add(1)
	go s.loop()
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (s *ReminderScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	log.Printf("[ReminderScheduler] Stopped. Runs: %d, Errors: %d",
		atomic.LoadInt64(&s.totalRuns), atomic.LoadInt64(&s.totalErrors))
}

func (s *ReminderScheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *ReminderScheduler) tick() {
	for _, kind := range s.kinds {
		if s.ctx.Err() != nil {
			return
		}
		s.runKind(kind)
	}
}

// runKind scans one rule kind under a distributed lock. A held lock
// means another instance is already scanning; skip silently. The lock is
// heartbeat-extended for the duration of the scan so a run that outlasts
// the TTL never overlaps with a second holder.
func (s *ReminderScheduler) runKind(kind domain.RuleKind) {
	lock := distlock.NewLock(s.redis, s.db, "scan:"+string(kind), s.lockTTL)

	acquired, err := lock.Acquire(s.ctx)
	if err != nil {
		atomic.AddInt64(&s.totalErrors, 1)
		log.Printf("[ReminderScheduler] lock %s: %v", kind, err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			log.Printf("[ReminderScheduler] release lock %s: %v", kind, err)
		}
	}()
	stopHeartbeat := distlock.KeepAlive(s.ctx, lock, s.lockTTL)
	defer stopHeartbeat()

	atomic.AddInt64(&s.totalRuns, 1)
	if err := s.runner.Run(s.ctx, kind, ""); err != nil {
		atomic.AddInt64(&s.totalErrors, 1)
		log.Printf("[ReminderScheduler] scan %s: %v", kind, err)
	}
}
