// Package podwork distributes the units of a batch job across a dynamically
// sized pool of worker pods and throttles how many units run at once on each
// pod.
//
// Two coordination protocols are supported:
//
//   - pull: a master pod serves chunk indices over HTTP (service/dispenser)
//     and every pod asks for the next chunk until the job is exhausted
//     (service/puller).
//   - push: pods announce their capacity over a message broker, receive a
//     static range of global CPU slots (service/coordinator) and run the
//     units a fair-share partitioner assigns to their slots
//     (service/partition, service/fanout) under a per-pod worker pool
//     (service/processor).
//
// The Service type composes these pieces from a Config:
//
//	cfg, _ := podwork.LoadConfig(ctx, "podwork.yaml")
//	srv, _ := podwork.New(cfg)
//	err := srv.RunMaster(ctx)
package podwork
