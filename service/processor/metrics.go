package processor

import metrics "github.com/docker/go-metrics"

var (
	runningGauge      metrics.Gauge
	activationCounter metrics.LabeledCounter
	activationTimer   metrics.Timer
)

func init() {
	ns := metrics.NewNamespace("podwork", "processor", nil)
	runningGauge = ns.NewGauge("running_activations", "The number of activations currently running on this pod", metrics.Total)
	activationCounter = ns.NewLabeledCounter("activations", "The number of finished activations by outcome", "outcome")
	activationTimer = ns.NewTimer("activation", "The wall-clock duration of an activation")
	metrics.Register(ns)
}
