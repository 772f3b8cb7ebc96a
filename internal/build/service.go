// Package build runs and supervises builds: it accepts a request,
// launches xcodebuild as a subprocess, streams classified output to the
// build's log channel and records exactly one terminal status.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xscape-dev/agent/internal/logs"
	"github.com/xscape-dev/agent/internal/models"
	"github.com/xscape-dev/agent/internal/state"
	"github.com/xscape-dev/agent/internal/toolchain"
	"github.com/xscape-dev/agent/internal/xcodebuild"
)

var (
	// ErrProjectNotFound is returned when a build names an
	// unregistered project id.
	ErrProjectNotFound = errors.New("project not found")
	// ErrBuildNotFound is returned by status lookups for unknown ids.
	ErrBuildNotFound = errors.New("build not found")
)

// Service orchestrates build lifecycles.
type Service struct {
	store  *state.Store
	runner toolchain.Runner
	logger *slog.Logger
}

// NewService creates a build service.
func NewService(st *state.Store, runner toolchain.Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		runner: runner,
		logger: logger,
	}
}

// Start accepts a build request, writes the queued record, creates the
// log channel and hands off to an independent goroutine. The caller
// never blocks on the build itself.
func (s *Service) Start(ctx context.Context, req *models.BuildRequest) (*models.BuildRecord, error) {
	project, ok := s.store.GetProject(req.ProjectID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, req.ProjectID)
	}

	record := &models.BuildRecord{
		ID:        uuid.New().String(),
		ProjectID: project.ID,
		Scheme:    req.Scheme,
		Status:    models.BuildStatusQueued,
		StartedAt: time.Now().UTC(),
		Warnings:  []string{},
	}
	s.store.PutBuild(record)
	channel := s.store.CreateLogChannel(record.ID)

	s.logger.Info("build accepted",
		"build_id", record.ID,
		"project", project.Name,
		"scheme", req.Scheme,
		"configuration", req.Configuration,
	)

	// The build outlives the HTTP request; it must not inherit the
	// request's cancellation.
	go s.run(context.WithoutCancel(ctx), record, project, req, channel)

	return record, nil
}

// Get returns the current build record.
func (s *Service) Get(buildID string) (*models.BuildRecord, error) {
	record, ok := s.store.GetBuild(buildID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBuildNotFound, buildID)
	}
	return record, nil
}

// run owns the build from spawn to terminal record. All failures,
// including panics, are converted into a terminal status; nothing
// escapes to take down the agent or other builds.
func (s *Service) run(ctx context.Context, record *models.BuildRecord, project *models.Project, req *models.BuildRequest, channel *logs.Channel) {
	defer channel.Close()
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("build task panicked", "build_id", record.ID, "panic", rec)
			s.finish(record, channel, models.BuildStatusFailed, fmt.Sprintf("internal error: %v", rec), nil)
		}
	}()

	building := *record
	building.Status = models.BuildStatusBuilding
	s.store.PutBuild(&building)
	record = &building

	desc, err := xcodebuild.FindDescriptor(project.Path, req.ProjectFile)
	if err != nil {
		s.finish(record, channel, models.BuildStatusFailed, err.Error(), nil)
		return
	}

	channel.Publish(models.SystemEventMessage(models.EventBuildStarted,
		fmt.Sprintf("Building scheme '%s' for %s", req.Scheme, req.Destination.DeviceName)))

	proc, err := s.runner.Start(ctx, project.Path, "xcodebuild", xcodebuild.Args(desc, req)...)
	if err != nil {
		s.finish(record, channel, models.BuildStatusFailed, fmt.Sprintf("spawning xcodebuild: %v", err), nil)
		return
	}

	// Both streams are consumed concurrently with the build; lines
	// reach subscribers live, per-stream ordered.
	warnings := make(chan []string, 1)
	go func() {
		var collected []string
		for line := range proc.Stdout() {
			level := xcodebuild.ClassifyLine(line)
			if level == models.LogLevelWarning {
				collected = append(collected, line)
			}
			channel.Publish(models.BuildOutput(level, line))
		}
		warnings <- collected
	}()
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		for line := range proc.Stderr() {
			channel.Publish(models.BuildOutput(models.LogLevelError, line))
		}
	}()

	waitErr := proc.Wait()
	collectedWarnings := <-warnings
	<-stderrDone

	if waitErr != nil {
		var exitErr *toolchain.ExitError
		if errors.As(waitErr, &exitErr) && exitErr.Signalled {
			s.finish(record, channel, models.BuildStatusCancelled, waitErr.Error(), collectedWarnings)
			return
		}
		s.finish(record, channel, models.BuildStatusFailed, fmt.Sprintf("build failed: %v", waitErr), collectedWarnings)
		return
	}

	appPath, err := xcodebuild.FindAppBundle(project.Path, req.Configuration)
	if err != nil {
		s.finish(record, channel, models.BuildStatusFailed,
			fmt.Sprintf("build succeeded but no app bundle was found for configuration %s: %v", req.Configuration.XcodeName(), err),
			collectedWarnings)
		return
	}

	bundleID, err := xcodebuild.BundleID(ctx, s.runner, appPath)
	if err != nil {
		s.finish(record, channel, models.BuildStatusFailed, fmt.Sprintf("reading bundle identifier: %v", err), collectedWarnings)
		return
	}

	artifact := &models.Artifact{
		AppPath:  appPath,
		BundleID: bundleID,
		Warnings: collectedWarnings,
	}
	s.store.PutArtifact(record.ID, artifact)

	done := *record
	done.Status = models.BuildStatusSucceeded
	done.AppPath = appPath
	done.BundleID = bundleID
	done.Warnings = warningsOrEmpty(collectedWarnings)
	stamp(&done)
	s.store.PutBuild(&done)

	channel.Publish(models.SystemEventMessage(models.EventBuildSucceeded,
		fmt.Sprintf("Build succeeded: %s", appPath)))
	s.logger.Info("build succeeded",
		"build_id", record.ID,
		"app_path", appPath,
		"bundle_id", bundleID,
		"warnings", len(collectedWarnings),
	)
}

// finish performs the single terminal record replacement for an
// unsuccessful outcome and publishes the matching system event.
func (s *Service) finish(record *models.BuildRecord, channel *logs.Channel, status models.BuildStatus, message string, warnings []string) {
	done := *record
	done.Status = status
	done.ErrorMessage = message
	done.Warnings = warningsOrEmpty(warnings)
	stamp(&done)
	s.store.PutBuild(&done)

	event := models.EventBuildFailed
	if status == models.BuildStatusCancelled {
		event = models.EventBuildCancelled
	}
	channel.Publish(models.SystemEventMessage(event, message))
	s.logger.Warn("build finished without success",
		"build_id", record.ID,
		"status", status,
		"error", message,
	)
}

func stamp(record *models.BuildRecord) {
	now := time.Now().UTC()
	record.FinishedAt = &now
	secs := now.Sub(record.StartedAt).Seconds()
	record.DurationSecs = &secs
}

func warningsOrEmpty(warnings []string) []string {
	if warnings == nil {
		return []string{}
	}
	return warnings
}
