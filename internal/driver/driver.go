// Package driver polls the store for submissions with pending work and runs
// the matching pipeline stage on each. The driver itself holds no state:
// every decision comes from the persisted submission state, so several
// driver instances may poll the same store and the compare-and-advance
// commits sort out the races.
package driver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/me/seqflow/internal/store"
	"github.com/me/seqflow/pkg/model"
)

// Stages is the pipeline surface the driver dispatches to.
type Stages interface {
	DownloadFiles(ctx context.Context, id string) error
	Prepare(ctx context.Context, id string) error
	Execute(ctx context.Context, id string) error
	CollectResults(ctx context.Context, id string) (*model.Analysis, error)
}

// Config holds driver configuration.
type Config struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{PollInterval: 5 * time.Second}
}

// workingStates are the states the driver acts on, in pipeline order.
var workingStates = []model.SubmissionState{
	model.SubmissionStateCreated,
	model.SubmissionStateFilesMirrored,
	model.SubmissionStatePrepared,
	model.SubmissionStateRunning,
}

// Loop is a polling driver over the submission pipeline.
type Loop struct {
	store  store.SubmissionStore
	stages Stages
	config Config
	logger *slog.Logger
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewLoop creates a new driver loop.
func NewLoop(st store.SubmissionStore, stages Stages, cfg Config, logger *slog.Logger) *Loop {
	return &Loop{
		store:  st,
		stages: stages,
		config: cfg,
		logger: logger.With("component", "driver"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the polling loop. Blocks until ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("driver started", "poll_interval", l.config.PollInterval)
	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("driver stopping (context cancelled)")
			close(l.doneCh)
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("driver stopping (stop called)")
			close(l.doneCh)
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				l.logger.Error("tick error", "error", err)
			}
		}
	}
}

// Stop gracefully shuts down the driver and waits for the current tick to finish.
func (l *Loop) Stop() error {
	close(l.stopCh)
	<-l.doneCh
	return nil
}

// Tick runs one polling iteration: every submission with pending work gets
// its stage attempted once, each in its own goroutine. The tick waits for
// all stages before returning so ticks never overlap.
func (l *Loop) Tick(ctx context.Context) error {
	type item struct {
		id    string
		state model.SubmissionState
	}

	// Snapshot all pending work before dispatching so a stage committed
	// during this tick cannot get its successor dispatched in the same tick.
	var work []item
	for _, state := range workingStates {
		subs, err := l.store.ListSubmissionsByState(ctx, state)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			work = append(work, item{id: sub.ID, state: state})
		}
	}

	var wg sync.WaitGroup
	for _, w := range work {
		wg.Add(1)
		go func(w item) {
			defer wg.Done()
			l.runStage(ctx, w.id, w.state)
		}(w)
	}
	wg.Wait()
	return nil
}

// runStage dispatches the stage matching the submission's state and
// classifies the outcome for logging. Permanent failures are already
// recorded on the submission by the pipeline; the driver only reports.
func (l *Loop) runStage(ctx context.Context, id string, state model.SubmissionState) {
	logger := l.logger.With("submission", id, "state", state)

	var err error
	switch state {
	case model.SubmissionStateCreated:
		err = l.stages.DownloadFiles(ctx, id)
	case model.SubmissionStateFilesMirrored:
		err = l.stages.Prepare(ctx, id)
	case model.SubmissionStatePrepared:
		err = l.stages.Execute(ctx, id)
	case model.SubmissionStateRunning:
		_, err = l.stages.CollectResults(ctx, id)
	default:
		return
	}

	switch {
	case err == nil:
		logger.Info("stage completed", "advanced_to", state.NextStage())
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		logger.Debug("stage interrupted", "error", err)
	case model.IsPrecondition(err):
		// Another driver won the transition since we listed. Benign.
		logger.Debug("stage skipped, state moved underneath", "error", err)
	case model.IsNotFound(err):
		logger.Debug("submission vanished before stage ran", "error", err)
	case isRetryable(err):
		logger.Info("stage deferred, will retry next tick", "error", err)
	default:
		logger.Warn("stage failed", "error", err)
	}
}

func isRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}
