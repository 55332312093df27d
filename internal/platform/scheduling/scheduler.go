// Package scheduling runs background jobs, such as periodic corpus reloads,
// on cron schedules.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/labtrend/labtrend/internal/platform/auth"
	"github.com/labtrend/labtrend/internal/platform/openapi"
)

var (
	ErrDuplicateJob = errors.New("job already scheduled")
	ErrUnknownJob   = errors.New("unknown job")
)

// historySize is how many runs are kept per job.
const historySize = 10

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Run records one execution of a job.
type Run struct {
	Started  time.Time `json:"started"`
	Duration string    `json:"duration"`
	Error    string    `json:"error,omitempty"`
}

// JobStatus describes a scheduled job.
type JobStatus struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next,omitempty"`
	Runs     []Run     `json:"runs"`
}

type entry struct {
	id       cron.EntryID
	schedule string
	job      Job
	runs     []Run
}

// Scheduler runs jobs on cron schedules. A job still running when its next
// tick arrives skips that tick.
type Scheduler struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	timeout time.Duration
	now     func() time.Time

	mu   sync.Mutex
	jobs map[string]*entry
}

// New returns a stopped Scheduler. Each run gets a context that expires
// after timeout; zero means no limit.
func New(logger zerolog.Logger, timeout time.Duration) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger.With().Str("component", "scheduler").Logger(),
		timeout: timeout,
		now:     time.Now,
		jobs:    make(map[string]*entry),
	}
}

// ValidateSpec reports whether spec is a standard five-field cron
// expression or a descriptor such as "@hourly" or "@every 15m".
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Add schedules job under name.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if err := ValidateSpec(spec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	id, err := s.cron.AddFunc(spec, func() { _ = s.run(name, job) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.jobs[name] = &entry{id: id, schedule: spec, job: job}
	s.logger.Info().Str("job", name).Str("schedule", spec).Msg("job scheduled")
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow executes a scheduled job once, outside its schedule, and returns
// its error.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(name, e.job)
}

func (s *Scheduler) run(name string, job Job) error {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := s.now()
	err := job(ctx)
	r := Run{Started: started.UTC(), Duration: s.now().Sub(started).String()}

	log := s.logger.With().Str("job", name).Str("duration", r.Duration).Logger()
	if err != nil {
		r.Error = err.Error()
		log.Error().Err(err).Msg("scheduled job failed")
	} else {
		log.Info().Msg("scheduled job finished")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.jobs[name]; ok {
		e.runs = append(e.runs, r)
		if len(e.runs) > historySize {
			e.runs = e.runs[len(e.runs)-historySize:]
		}
	}
	return err
}

// Jobs lists every job, sorted by name, with its next run time and recent
// runs, newest last.
func (s *Scheduler) Jobs() []JobStatus {
	next := make(map[cron.EntryID]time.Time)
	for _, e := range s.cron.Entries() {
		next[e.ID] = e.Next
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for name, e := range s.jobs {
		out = append(out, JobStatus{
			Name:     name,
			Schedule: e.schedule,
			Next:     next[e.id],
			Runs:     append([]Run{}, e.runs...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// -- HTTP --

type Handler struct {
	scheduler *Scheduler
}

func NewHandler(s *Scheduler) *Handler {
	return &Handler{scheduler: s}
}

func (h *Handler) RegisterRoutes(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.GET("/schedule", h.ListJobs, m...)
}

func (h *Handler) Operations() []openapi.Operation {
	return []openapi.Operation{{
		Method: http.MethodGet, Path: "/schedule", Tag: "corpus", Role: auth.RoleAdmin,
		Summary: "List scheduled jobs with their next run and recent runs", Response: "[]JobStatus",
	}}
}

// Schemas returns the component schemas referenced by Operations.
func Schemas() map[string]interface{} {
	return map[string]interface{}{
		"JobRun": openapi.Object(map[string]interface{}{
			"started":  openapi.Format("date-time"),
			"duration": openapi.String(),
			"error":    openapi.String(),
		}, "started", "duration"),
		"JobStatus": openapi.Object(map[string]interface{}{
			"name":     openapi.String(),
			"schedule": openapi.String(),
			"next":     openapi.Format("date-time"),
			"runs":     openapi.ArrayOf("JobRun"),
		}, "name", "schedule", "runs"),
	}
}

func (h *Handler) ListJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, h.scheduler.Jobs())
}
