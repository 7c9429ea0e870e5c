// Package fanout turns a broadcast job into the activations a pod owns and
// runs them through the pod's admission gate.
package fanout

import (
	"context"
	"fmt"

	metrics "github.com/docker/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/viant/podwork/internal/clock"
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/progress"
	"github.com/viant/podwork/service/partition"
	"github.com/viant/podwork/tracing"
)

// Gate admits activations with bounded concurrency.
type Gate interface {
	Run(ctx context.Context, activations []*model.Activation, tracker *progress.Progress) error
}

var (
	dispatchTimer   metrics.Timer
	dispatchCounter metrics.LabeledCounter
)

func init() {
	ns := metrics.NewNamespace("podwork", "fanout", nil)
	dispatchTimer = ns.NewTimer("dispatch", "The time it takes to run every activation of a broadcast")
	dispatchCounter = ns.NewLabeledCounter("dispatches", "The number of broadcasts by fan-out mode", "mode")
	metrics.Register(ns)
}

// Service fans broadcast jobs out over a gate
type Service struct {
	gate Gate
}

// New creates a fan-out over gate
func New(gate Gate) *Service {
	return &Service{gate: gate}
}

// Activations builds one activation per unit the pod owning r must run.
// It returns nil when the job has no unit for this pod.
func Activations(job *model.Job, r model.PodRange) ([]*model.Activation, error) {
	totalFunctions := totalCalls(job)
	if r.RequestedSlots(totalFunctions) == 0 {
		return nil, nil
	}
	return activationsFor(job, partition.Plan(r, totalFunctions))
}

func activationsFor(job *model.Job, plan []int) ([]*model.Activation, error) {
	activations := make([]*model.Activation, 0, len(plan))
	for _, index := range plan {
		narrowed, err := job.Narrow(index)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", job.JobKey, err)
		}
		activations = append(activations, model.NewActivation(model.BackendPush, index, narrowed))
	}
	return activations, nil
}

// Dispatch runs every unit the pod owning r must execute and blocks until
// they all finished. An irrelevant broadcast returns a nil tracker.
func (s *Service) Dispatch(ctx context.Context, job *model.Job, r model.PodRange) (tracker *progress.Progress, err error) {
	if job == nil {
		return nil, fmt.Errorf("job was nil")
	}
	totalFunctions := totalCalls(job)
	requested := r.RequestedSlots(totalFunctions)
	entry := logrus.WithFields(logrus.Fields{"job_key": job.JobKey, "range": r.String(), "total_calls": totalFunctions})
	if requested == 0 {
		entry.Debug("broadcast not for this pod")
		return nil, nil
	}

	ctx, span := tracing.StartSpan(ctx, "fanout.Dispatch", "CONSUMER")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"job.key": job.JobKey, "pod.range": r.String()})

	executions, base := partition.Executions(r.TotalCPUs, r.PodCPUs(), r, totalFunctions)
	mode := "simple"
	if executions != requested {
		mode = "overflow"
	}
	dispatchCounter.WithValues(mode).Inc()
	plan := partition.Plan(r, totalFunctions)
	entry.WithFields(logrus.Fields{
		"executions":      executions,
		"base":            base,
		"rounds":          partition.Rounds(plan, r.TotalCPUs),
		"requested_slots": requested,
		"mode":            mode,
	}).Info("dispatching")

	activations, err := activationsFor(job, plan)
	if err != nil {
		return nil, err
	}
	ctx, tracker = progress.WithNewTracker(ctx, "", job.JobKey, nil)
	started := clock.Now()
	if err = s.gate.Run(ctx, activations, tracker); err != nil {
		return tracker, err
	}
	dispatchTimer.UpdateSince(started)
	snapshot := tracker.Snapshot()
	entry.WithFields(logrus.Fields{
		"completed": snapshot.Completed,
		"failed":    snapshot.Failed,
		"elapsed":   clock.Since(started),
	}).Info("dispatch finished")
	return tracker, nil
}

// totalCalls falls back to the call id count when the payload omits total_calls.
func totalCalls(job *model.Job) int {
	if job.TotalCalls > 0 {
		return job.TotalCalls
	}
	return len(job.CallIDs)
}
