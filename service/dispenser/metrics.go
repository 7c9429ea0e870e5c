package dispenser

import metrics "github.com/docker/go-metrics"

var (
	dispensedCounter metrics.LabeledCounter
	activeJobsGauge  metrics.Gauge
	requestTimer     metrics.Timer
)

func init() {
	ns := metrics.NewNamespace("podwork", "dispenser", nil)
	dispensedCounter = ns.NewLabeledCounter("dispensed", "The number of dispenser answers by outcome", "outcome")
	activeJobsGauge = ns.NewGauge("jobs", "The number of job counters held by the dispenser", metrics.Total)
	requestTimer = ns.NewTimer("request", "The time it takes to answer a getid request")
	metrics.Register(ns)
}
