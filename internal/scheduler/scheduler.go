// Package scheduler runs persisted cron jobs. Schedules live in the
// sync_jobs table so they can be changed at runtime through the API;
// execution uses robfig/cron with per-job overlap protection.
package scheduler

import (
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/alertsync/alertsync/internal/database"
)

// Scheduler owns the cron runtime and the mapping from persisted job names
// to their work functions. Jobs must be registered before LoadJobs reads
// the table; a persisted job without a registered runner is skipped.
type Scheduler struct {
	db   *gorm.DB
	cron *cron.Cron

	mu      sync.Mutex
	runners map[string]func()
	entries map[string]cron.EntryID
	loaded  bool
}

// New creates a stopped scheduler. A slow run skips the next tick instead
// of stacking, and a panicking job never takes the process down.
func New(db *gorm.DB) *Scheduler {
	logger := cron.PrintfLogger(log.Default())
	return &Scheduler{
		db: db,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(logger),
			cron.Recover(logger),
		)),
		runners: make(map[string]func()),
		entries: make(map[string]cron.EntryID),
	}
}

// Register binds a job name to its work function.
func (s *Scheduler) Register(name string, run func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runners[name] = run
}

// LoadJobs schedules every enabled job from the database. Call it only
// after migrations have run, so the table is guaranteed to exist.
func (s *Scheduler) LoadJobs() error {
	jobs, err := database.ListEnabledSyncJobs(s.db)
	if err != nil {
		return fmt.Errorf("failed to load scheduler jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		if err := s.scheduleLocked(job.Name, job.CronExpression); err != nil {
			log.Printf("Skipping job %s: %v", job.Name, err)
			continue
		}
		log.Printf("Scheduled job %s (%s)", job.Name, job.CronExpression)
	}
	s.loaded = true
	return nil
}

// UpsertJob persists a job definition and atomically replaces its live
// schedule. Disabling a job removes it from the cron runtime but keeps the
// row.
func (s *Scheduler) UpsertJob(name, expr string, enabled bool) error {
	if err := ValidateCron(expr); err != nil {
		return err
	}
	if _, err := database.UpsertSyncJob(s.db, name, expr, enabled); err != nil {
		return fmt.Errorf("failed to persist job %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	if !enabled {
		log.Printf("Job %s disabled", name)
		return nil
	}
	if err := s.scheduleLocked(name, expr); err != nil {
		return err
	}
	log.Printf("Job %s rescheduled (%s)", name, expr)
	return nil
}

func (s *Scheduler) scheduleLocked(name, expr string) error {
	run, ok := s.runners[name]
	if !ok {
		return fmt.Errorf("no runner registered for job %s", name)
	}
	id, err := s.cron.AddFunc(expr, run)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	s.entries[name] = id
	return nil
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("Scheduler started with %d jobs", len(s.entries))
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Printf("Scheduler stopped")
}

// ValidateCron checks a standard 5-field cron expression.
func ValidateCron(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}
