package model

import "fmt"

// PodRange is the inclusive CPU-slot interval owned by one pod.
type PodRange struct {
	RangeStart int
	RangeEnd   int
	TotalCPUs  int
}

// PodCPUs returns the number of slots owned by the pod.
func (r PodRange) PodCPUs() int {
	return r.RangeEnd - r.RangeStart + 1
}

// RequestedSlots returns how many slots of this pod have a unit in the first
// round of a job with totalCalls units; zero means the job is not for this pod.
func (r PodRange) RequestedSlots(totalCalls int) int {
	if totalCalls <= r.RangeStart {
		return 0
	}
	if remaining := totalCalls - r.RangeStart; remaining < r.PodCPUs() {
		return remaining
	}
	return r.PodCPUs()
}

// Validate checks the range is well formed.
func (r PodRange) Validate() error {
	if r.TotalCPUs <= 0 {
		return fmt.Errorf("total cpus must be > 0, got %d", r.TotalCPUs)
	}
	if r.RangeStart < 0 || r.RangeEnd < r.RangeStart {
		return fmt.Errorf("invalid range [%d,%d]", r.RangeStart, r.RangeEnd)
	}
	if r.RangeEnd >= r.TotalCPUs {
		return fmt.Errorf("range end %d beyond total cpus %d", r.RangeEnd, r.TotalCPUs)
	}
	return nil
}

func (r PodRange) String() string {
	return fmt.Sprintf("[%d,%d]/%d", r.RangeStart, r.RangeEnd, r.TotalCPUs)
}
