package convlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// DocsExporter is the subset of GoogleDocs the scheduler needs.
type DocsExporter interface {
	Connected() bool
	Export(ctx context.Context, x Export) (string, error)
}

// SchedulerConfig configures periodic exports.
type SchedulerConfig struct {
	Schedule string       // cron expression with seconds, e.g. "0 0 20 * * *"
	Dir      string       // file export directory
	Docs     DocsExporter // optional; used when connected
}

// ExportResult describes one scheduled run.
type ExportResult struct {
	Path  string
	DocID string
	At    time.Time
}

// Scheduler runs exports of the active log on a cron schedule.
type Scheduler struct {
	log    *Log
	cfg    SchedulerConfig
	cron   *rcron.Cron
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last ExportResult
}

// NewScheduler validates the schedule and registers the export job. The
// scheduler does nothing until Start.
func NewScheduler(l *Log, cfg SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		log:    l,
		cfg:    cfg,
		cron:   rcron.New(rcron.WithSeconds()),
		logger: logger.With("component", "convlog.scheduler"),
		now:    time.Now,
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.Error("scheduled export failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("convlog: invalid schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start runs the scheduler until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.logger.Info("started", "schedule", s.cfg.Schedule, "dir", s.cfg.Dir)
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the scheduler, waiting briefly for a running export.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.logger.Warn("stop timeout waiting for running export")
	}
}

// RunOnce exports now: always to a file, and to Google Docs when connected.
// A Docs failure is returned after the file export succeeded.
func (s *Scheduler) RunOnce(ctx context.Context) (ExportResult, error) {
	at := s.now()
	x := s.log.Export(at)

	res := ExportResult{At: at}
	path, err := WriteExport(s.cfg.Dir, x)
	if err != nil {
		return res, err
	}
	res.Path = path

	var docsErr error
	if s.cfg.Docs != nil && s.cfg.Docs.Connected() {
		res.DocID, docsErr = s.cfg.Docs.Export(ctx, x)
	}

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()

	s.logger.Info("export written", "path", path, "doc_id", res.DocID, "entries", len(x.Entries))
	return res, docsErr
}

// Last returns the most recent run.
func (s *Scheduler) Last() ExportResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Next returns the next scheduled run, or the zero time when stopped.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
