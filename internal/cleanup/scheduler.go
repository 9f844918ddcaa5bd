package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/amankumarsingh77/media-fetcher/internal/config"
	"github.com/amankumarsingh77/media-fetcher/internal/jobs"
	"github.com/amankumarsingh77/media-fetcher/internal/models"
	"github.com/amankumarsingh77/media-fetcher/pkg/logger"
)

// ProcessCanceller is the slice of the media engine the sweep needs.
type ProcessCanceller interface {
	Cancel(jobID string) bool
	JobDir(jobID string) string
}

type SweepReport struct {
	JobsRemoved    int
	OrphansRemoved int
	Failures       int
}

type Scheduler struct {
	repo      jobs.Repository
	engine    ProcessCanceller
	artifacts jobs.ArtifactStore
	publisher jobs.SnapshotPublisher
	logger    logger.Logger

	root       string
	interval   time.Duration
	expiry     time.Duration
	now        func() time.Time
	removeTree func(path string) error

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler wires the sweep. artifacts may be nil when offload is disabled.
func NewScheduler(cfg *config.Config, repo jobs.Repository, engine ProcessCanceller, artifacts jobs.ArtifactStore, publisher jobs.SnapshotPublisher, logger logger.Logger) *Scheduler {
	return &Scheduler{
		repo:       repo,
		engine:     engine,
		artifacts:  artifacts,
		publisher:  publisher,
		logger:     logger,
		root:       cfg.Media.WorkDir,
		interval:   time.Duration(cfg.Cleanup.IntervalMinutes) * time.Minute,
		expiry:     time.Duration(cfg.Cleanup.ExpiryMinutes) * time.Minute,
		now:        time.Now,
		removeTree: RemoveTree,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per interval until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		s.runPass(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.runPass(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for a running pass. It returns at once if Start was never called.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("cleanup - sweep panic: %v", r)
		}
	}()
	report := s.Sweep(ctx)
	if report.JobsRemoved+report.OrphansRemoved+report.Failures > 0 {
		s.logger.Infof("cleanup - removed %d jobs, %d orphan dirs, %d failures",
			report.JobsRemoved, report.OrphansRemoved, report.Failures)
	}
}

// Sweep removes every job older than the expiry, then every unowned directory older than it.
// Per-item failures are logged and counted, never returned.
func (s *Scheduler) Sweep(ctx context.Context) SweepReport {
	var report SweepReport
	for _, job := range s.repo.ListExpired(s.expiry) {
		if err := s.Reclaim(ctx, job); err != nil {
			s.logger.Warnf("cleanup - job %s (%s) reclaim error: %v", job.ID, job.Status, err)
			report.Failures++
			continue
		}
		report.JobsRemoved++
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warnf("cleanup - read root %s error: %v", s.root, err)
			report.Failures++
		}
		return report
	}
	cutoff := s.now().Add(-s.expiry)
	for _, entry := range entries {
		if !entry.IsDir() || s.repo.Exists(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		dir := filepath.Join(s.root, entry.Name())
		if err := s.removeTree(dir); err != nil {
			s.logger.Warnf("cleanup - orphan %s remove error: %v", dir, err)
			report.Failures++
			continue
		}
		report.OrphansRemoved++
	}
	return report
}

// Reclaim stops the job's tool, deletes its directory and offloaded copy, and drops the
// record. The record is dropped even when a storage step fails; the first error is returned.
func (s *Scheduler) Reclaim(ctx context.Context, job *models.Job) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.engine.Cancel(job.ID) {
		s.logger.Infof("cleanup - job %s terminated before removal", job.ID)
	}
	record(s.removeTree(s.engine.JobDir(job.ID)))
	if job.ArtifactKey != "" && s.artifacts != nil {
		record(s.artifacts.Remove(ctx, job.ArtifactKey))
	}
	if err := s.publisher.Remove(ctx, job.ID); err != nil {
		s.logger.Warnf("cleanup - job %s snapshot remove error: %v", job.ID, err)
	}
	if err := s.repo.Delete(job.ID); err != nil && !models.IsKind(err, models.KindNotFound) {
		record(err)
	}
	return firstErr
}

// RemoveTree deletes path depth-first: the files of a directory, then its
// subdirectories, then the directory itself. A missing path is not an error.
func RemoveTree(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return os.Remove(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var firstErr error
	var subdirs []string
	for _, entry := range entries {
		child := filepath.Join(path, entry.Name())
		if entry.IsDir() {
			subdirs = append(subdirs, child)
			continue
		}
		if err := os.Remove(child); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	for _, dir := range subdirs {
		if err := RemoveTree(dir); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
