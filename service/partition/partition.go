// Package partition splits a job's units fairly across globally numbered CPU
// slots. Units are dealt round-robin: unit i belongs to slot i mod totalCPUs,
// so every slot runs base = totalFunctions / totalCPUs units and the first
// totalFunctions mod totalCPUs slots run one more.
package partition

import "github.com/viant/podwork/model"

// Executions returns how many units a pod owning podCPUs slots in r must run,
// and the number of full rounds every slot runs.
func Executions(totalCPUs, podCPUs int, r model.PodRange, totalFunctions int) (executions, base int) {
	if totalCPUs <= 0 || totalFunctions <= 0 {
		return 0, 0
	}
	base = totalFunctions / totalCPUs
	remainder := totalFunctions % totalCPUs
	executions = podCPUs * base

	switch {
	case r.RangeStart <= remainder && remainder <= r.RangeEnd:
		executions += remainder - r.RangeStart
	case r.RangeStart < remainder:
		executions += podCPUs
	}
	return executions, base
}

// Plan returns the global unit indices the pod owning r runs, round by round.
// Its length always equals the executions reported by Executions.
func Plan(r model.PodRange, totalFunctions int) []int {
	if r.TotalCPUs <= 0 || totalFunctions <= 0 {
		return nil
	}
	_, base := Executions(r.TotalCPUs, r.PodCPUs(), r, totalFunctions)
	var indices []int
	for round := 0; round <= base; round++ {
		for slot := r.RangeStart; slot <= r.RangeEnd; slot++ {
			index := round*r.TotalCPUs + slot
			if index >= totalFunctions {
				break
			}
			indices = append(indices, index)
		}
	}
	return indices
}

// Rounds returns how many rounds the plan spans.
func Rounds(plan []int, totalCPUs int) int {
	if len(plan) == 0 || totalCPUs <= 0 {
		return 0
	}
	return plan[len(plan)-1]/totalCPUs + 1
}
