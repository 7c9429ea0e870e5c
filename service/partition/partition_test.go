package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/podwork/model"
)

func TestExecutions(t *testing.T) {
	testCases := []struct {
		name           string
		r              model.PodRange
		totalFunctions int
		executions     int
		base           int
	}{
		{name: "straddles remainder", r: model.PodRange{RangeStart: 0, RangeEnd: 2, TotalCPUs: 5}, totalFunctions: 12, executions: 8, base: 2},
		{name: "beyond remainder", r: model.PodRange{RangeStart: 3, RangeEnd: 4, TotalCPUs: 5}, totalFunctions: 12, executions: 4, base: 2},
		{name: "inside remainder", r: model.PodRange{RangeStart: 0, RangeEnd: 1, TotalCPUs: 5}, totalFunctions: 14, executions: 6, base: 2},
		{name: "even split", r: model.PodRange{RangeStart: 0, RangeEnd: 3, TotalCPUs: 4}, totalFunctions: 4, executions: 4, base: 1},
		{name: "fewer units than slots", r: model.PodRange{RangeStart: 2, RangeEnd: 5, TotalCPUs: 8}, totalFunctions: 3, executions: 1, base: 0},
		{name: "no units", r: model.PodRange{RangeStart: 0, RangeEnd: 3, TotalCPUs: 4}, totalFunctions: 0, executions: 0, base: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			executions, base := Executions(tc.r.TotalCPUs, tc.r.PodCPUs(), tc.r, tc.totalFunctions)
			assert.Equal(t, tc.executions, executions)
			assert.Equal(t, tc.base, base)
			assert.Len(t, Plan(tc.r, tc.totalFunctions), tc.executions)
		})
	}
}

// layouts enumerates every split of [0,totalCPUs-1] into contiguous ranges.
func layouts(totalCPUs int) [][]model.PodRange {
	var ret [][]model.PodRange
	var walk func(start int, acc []model.PodRange)
	walk = func(start int, acc []model.PodRange) {
		if start == totalCPUs {
			ret = append(ret, append([]model.PodRange(nil), acc...))
			return
		}
		for end := start; end < totalCPUs; end++ {
			walk(end+1, append(acc, model.PodRange{RangeStart: start, RangeEnd: end, TotalCPUs: totalCPUs}))
		}
	}
	walk(0, nil)
	return ret
}

func TestExecutions_Conservation(t *testing.T) {
	for totalCPUs := 1; totalCPUs <= 7; totalCPUs++ {
		for _, pods := range layouts(totalCPUs) {
			for totalFunctions := 0; totalFunctions <= 3*totalCPUs+2; totalFunctions++ {
				sum := 0
				seen := map[int]bool{}
				for _, r := range pods {
					executions, _ := Executions(totalCPUs, r.PodCPUs(), r, totalFunctions)
					sum += executions
					plan := Plan(r, totalFunctions)
					assert.Len(t, plan, executions)
					for _, index := range plan {
						assert.False(t, seen[index], "index %d planned twice", index)
						seen[index] = true
					}
				}
				assert.Equal(t, totalFunctions, sum, "cpus=%d pods=%v functions=%d", totalCPUs, pods, totalFunctions)
				assert.Len(t, seen, totalFunctions)
			}
		}
	}
}

func TestPlan(t *testing.T) {
	r := model.PodRange{RangeStart: 0, RangeEnd: 2, TotalCPUs: 5}
	plan := Plan(r, 12)
	assert.Equal(t, []int{0, 1, 2, 5, 6, 7, 10, 11}, plan)
	assert.Equal(t, 3, Rounds(plan, 5))

	simple := Plan(model.PodRange{RangeStart: 0, RangeEnd: 3, TotalCPUs: 4}, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, simple)
	assert.Equal(t, 1, Rounds(simple, 4))

	assert.Empty(t, Plan(model.PodRange{RangeStart: 5, RangeEnd: 7, TotalCPUs: 8}, 3))
	assert.Equal(t, 0, Rounds(nil, 4))
}
