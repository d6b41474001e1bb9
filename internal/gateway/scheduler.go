package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/CosmoTheDev/codesense/internal/config"
	"github.com/CosmoTheDev/codesense/internal/scanner"
)

// ErrUnknownSchedule is returned when no schedule has the given name.
var ErrUnknownSchedule = errors.New("unknown schedule")

// Scheduler registers the configured schedules with robfig/cron. When a
// schedule fires it calls triggerFn and records the outcome.
type Scheduler struct {
	cron      *cron.Cron
	triggerFn func(config.ScheduleConfig) error
	broadcast func(SSEEvent)

	mu        sync.Mutex
	schedules map[string]config.ScheduleConfig
	runs      map[string]Schedule
	order     []string
}

func newScheduler(cfgs []config.ScheduleConfig, triggerFn func(config.ScheduleConfig) error, broadcast func(SSEEvent)) *Scheduler {
	s := &Scheduler{
		cron:      cron.New(),
		triggerFn: triggerFn,
		broadcast: broadcast,
		schedules: make(map[string]config.ScheduleConfig),
		runs:      make(map[string]Schedule),
	}
	for _, c := range cfgs {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			name = c.Path
		}
		c.Name = name
		if _, dup := s.schedules[name]; dup {
			slog.Warn("Ignoring duplicate schedule", "name", name)
			continue
		}
		s.schedules[name] = c
		s.runs[name] = Schedule{Name: name, Expr: c.Expr, Path: c.Path, Profile: c.Profile}
		s.order = append(s.order, name)
	}
	return s
}

// Start registers every schedule and starts the cron runner. A schedule
// with an invalid expression is skipped with a warning.
func (s *Scheduler) Start() error {
	loaded := 0
	for _, name := range s.order {
		sched := s.schedules[name]
		if err := s.register(sched); err != nil {
			slog.Warn("Skipping schedule with invalid expression",
				"name", sched.Name, "expr", sched.Expr, "error", err)
			continue
		}
		loaded++
	}
	s.cron.Start()
	slog.Info("Gateway scheduler started", "schedules_loaded", loaded)
	return nil
}

// Stop halts the cron runner gracefully.
func (s *Scheduler) Stop() { s.cron.Stop() }

// Len returns the number of configured schedules.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *Scheduler) register(sched config.ScheduleConfig) error {
	if _, err := s.cron.AddFunc(sched.Expr, func() {
		if err := s.run(sched, "schedule.fired"); err != nil {
			slog.Warn("Scheduled scan did not start", "name", sched.Name, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", sched.Expr, err)
	}
	return nil
}

// List returns all schedules in configuration order.
func (s *Scheduler) List() []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Schedule, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.runs[name])
	}
	return out
}

// TriggerNow starts the named schedule's scan immediately.
func (s *Scheduler) TriggerNow(name string) error {
	s.mu.Lock()
	sched, ok := s.schedules[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchedule, name)
	}
	return s.run(sched, "schedule.triggered")
}

func (s *Scheduler) run(sched config.ScheduleConfig, eventType string) error {
	err := s.triggerFn(sched)

	now := time.Now().UTC().Format(time.RFC3339)
	s.mu.Lock()
	rec := s.runs[sched.Name]
	rec.LastRunAt = &now
	rec.LastError = ""
	if err != nil {
		rec.LastError = err.Error()
	}
	s.runs[sched.Name] = rec
	s.mu.Unlock()

	payload := map[string]any{"name": sched.Name, "path": sched.Path}
	if eventType == "schedule.triggered" {
		payload["manual"] = true
	}
	if errors.Is(err, scanner.ErrScanInProgress) {
		payload["skipped"] = "scan in progress"
	} else if err != nil {
		payload["error"] = err.Error()
	}
	s.broadcast(SSEEvent{Type: eventType, Payload: payload})
	return err
}
