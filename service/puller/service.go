// Package puller runs the pull-protocol loop of a pod: it repeatedly asks the
// master for the next chunk index of a job and executes that chunk until the
// master reports the job exhausted.
package puller

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/viant/podwork/internal/clock"
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/progress"
	"github.com/viant/podwork/service/dispenser"
	"github.com/viant/podwork/service/executor"
	"github.com/viant/podwork/tracing"
)

// IndexSource hands out chunk indices; dispenser.Client and dispenser.Service
// both satisfy it.
type IndexSource interface {
	Next(ctx context.Context, jobKey string, totalCalls int) (int, error)
}

// Service executes the chunks a pod pulls from the master.
type Service struct {
	source   IndexSource
	executor executor.Service
}

// New creates a puller
func New(source IndexSource, executor executor.Service) *Service {
	return &Service{source: source, executor: executor}
}

// Run pulls and executes chunks sequentially and returns how many it ran.
// Engine failures are logged; the engine reports them to the client.
func (s *Service) Run(ctx context.Context, job *model.Job) (int, error) {
	if job == nil {
		return 0, fmt.Errorf("job was nil")
	}
	positions := job.ChunkPositions()
	chunks := len(positions)
	entry := logrus.WithFields(logrus.Fields{"job_key": job.JobKey, "total_calls": job.TotalCalls, "chunks": chunks})
	entry.Info("starting pull execution")
	ctx, tracker := progress.WithNewTracker(ctx, "", job.JobKey, nil)

	executed := 0
	for {
		// the master counts chunks, not units
		index, err := s.source.Next(ctx, job.JobKey, chunks)
		if err != nil {
			return executed, err
		}
		if index == dispenser.Done || index >= chunks {
			if index >= chunks {
				entry.WithField("index", index).Warn("master index beyond last chunk, treating job as exhausted")
			}
			snapshot := tracker.Snapshot()
			entry.WithFields(logrus.Fields{"executed": executed, "failed": snapshot.Failed}).Info("job exhausted")
			return executed, nil
		}
		if index < 0 {
			return executed, fmt.Errorf("master returned invalid index %d for job %s", index, job.JobKey)
		}
		chunk, err := job.Narrow(positions[index]...)
		if err != nil {
			return executed, err
		}
		activation := model.NewActivation(model.BackendPull, index, chunk)
		s.execute(ctx, activation)
		executed++
	}
}

func (s *Service) execute(ctx context.Context, activation *model.Activation) {
	ctx, span := tracing.StartSpan(ctx, "puller.execute", "INTERNAL")
	span.WithAttributes(map[string]string{"activation.id": activation.ID})
	entry := logrus.WithFields(logrus.Fields{"activation": activation.ID, "index": activation.Index})
	entry.Info("executing chunk")
	progress.UpdateCtx(ctx, progress.Delta{Total: 1, Running: 1})
	started := clock.Now()
	err := s.executor.Execute(ctx, activation)
	tracing.EndSpan(span, err)
	entry = entry.WithField("elapsed", clock.Since(started))
	if err != nil {
		progress.UpdateCtx(ctx, progress.Delta{Running: -1, Failed: 1})
		entry.WithError(err).Error("chunk failed")
		return
	}
	progress.UpdateCtx(ctx, progress.Delta{Running: -1, Completed: 1})
	entry.Info("chunk finished")
}
