package model

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callIDs(n int) []string {
	ret := make([]string, n)
	for i := range ret {
		ret[i] = fmt.Sprintf("%05d", i)
	}
	return ret
}

func TestChunks(t *testing.T) {
	testCases := []struct {
		name     string
		count    int
		size     int
		expected [][]string
	}{
		{name: "empty", count: 0, size: 3, expected: nil},
		{name: "even", count: 4, size: 2, expected: [][]string{{"00000", "00001"}, {"00002", "00003"}}},
		{name: "short tail", count: 5, size: 2, expected: [][]string{{"00000", "00001"}, {"00002", "00003"}, {"00004"}}},
		{name: "size larger than input", count: 2, size: 10, expected: [][]string{{"00000", "00001"}}},
		{name: "zero size means one", count: 2, size: 0, expected: [][]string{{"00000"}, {"00001"}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Chunks(callIDs(tc.count), tc.size))
		})
	}
}

func TestChunks_Deterministic(t *testing.T) {
	for m := 0; m <= 30; m++ {
		for c := 1; c <= 7; c++ {
			ids := callIDs(m)
			chunks := Chunks(ids, c)
			assert.Equal(t, chunks, Chunks(ids, c))
			assert.Len(t, chunks, (m+c-1)/c)
			var flat []string
			for i, chunk := range chunks {
				if i < len(chunks)-1 {
					assert.Len(t, chunk, c)
				}
				flat = append(flat, chunk...)
			}
			if m > 0 {
				assert.Equal(t, ids, flat)
			}
		}
	}
}

func TestDecodeJob(t *testing.T) {
	raw := `{"job_key":"A000-M000","total_calls":3,"chunksize":2,"call_ids":["00000","00001","00002"],` +
		`"data_byte_ranges":[[0,9],[10,19],[20,29]],"log_level":"DEBUG","runtime_name":"py311","config":{"storage":"s3"},"host_job_meta":{"x":1}}`
	encoded := base64.StdEncoding.EncodeToString([]byte(raw))

	job, err := DecodeJob(encoded)
	require.NoError(t, err)
	assert.Equal(t, "A000-M000", job.JobKey)
	assert.Equal(t, 3, job.TotalCalls)
	assert.Equal(t, 2, job.ChunkSize)
	assert.Equal(t, []string{"00000", "00001", "00002"}, job.CallIDs)
	assert.Equal(t, []ByteRange{{0, 9}, {10, 19}, {20, 29}}, job.DataByteRanges)
	assert.Equal(t, "DEBUG", job.LogLevel)
	assert.Equal(t, "py311", job.RuntimeName)
	assert.Contains(t, job.Extra, "config")
	assert.Contains(t, job.Extra, "host_job_meta")
	assert.NotContains(t, job.Extra, "job_key")

	reencoded, err := job.Encode()
	require.NoError(t, err)
	again, err := DecodeJob(reencoded)
	require.NoError(t, err)
	assert.Equal(t, job.CallIDs, again.CallIDs)
	assert.JSONEq(t, string(job.Extra["config"]), string(again.Extra["config"]))
}

func TestDecodeJob_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		encoded string
	}{
		{name: "empty", encoded: " "},
		{name: "not base64", encoded: "%%%"},
		{name: "not json", encoded: base64.StdEncoding.EncodeToString([]byte("nope"))},
		{name: "wrong type", encoded: base64.StdEncoding.EncodeToString([]byte(`{"total_calls":"x"}`))},
		{name: "null", encoded: base64.StdEncoding.EncodeToString([]byte(`null`))},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeJob(tc.encoded)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestJob_Unit(t *testing.T) {
	job := &Job{
		CallIDs:        []string{"00002", "00000", "x"},
		DataByteRanges: []ByteRange{{0, 1}, {2, 3}, {4, 5}},
	}
	unit, err := job.Unit(0)
	require.NoError(t, err)
	assert.Equal(t, WorkUnit{CallID: "00002", Range: ByteRange{4, 5}}, unit)

	unit, err = job.Unit(2)
	require.NoError(t, err)
	assert.Equal(t, ByteRange{4, 5}, unit.Range, "non numeric ids fall back to position")

	_, err = job.Unit(3)
	assert.Error(t, err)
}

func TestJob_Chunk(t *testing.T) {
	job := &Job{
		JobKey:         "job",
		TotalCalls:     5,
		ChunkSize:      2,
		CallIDs:        callIDs(5),
		DataByteRanges: []ByteRange{{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 4}},
		Extra:          map[string]json.RawMessage{"func_key": json.RawMessage(`"f"`)},
	}
	assert.Equal(t, 3, job.ChunkCount())

	chunk, err := job.Chunk(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"00004"}, chunk.CallIDs)
	assert.Equal(t, []ByteRange{{4, 4}}, chunk.DataByteRanges)
	assert.Equal(t, job.Extra, chunk.Extra)
	assert.Len(t, job.CallIDs, 5, "narrowing must not mutate the source job")

	_, err = job.Chunk(3)
	assert.Error(t, err)
}

func TestJob_ChunkPositions(t *testing.T) {
	testCases := []struct {
		description string
		count       int
		size        int
		expect      [][]int
	}{
		{description: "uneven tail", count: 5, size: 2, expect: [][]int{{0, 1}, {2, 3}, {4}}},
		{description: "exact", count: 4, size: 2, expect: [][]int{{0, 1}, {2, 3}}},
		{description: "zero size means one", count: 2, size: 0, expect: [][]int{{0}, {1}}},
		{description: "empty", count: 0, size: 3, expect: [][]int{}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			job := &Job{CallIDs: callIDs(testCase.count), ChunkSize: testCase.size}
			assert.Equal(t, testCase.expect, job.ChunkPositions())
			assert.Equal(t, len(Chunks(job.CallIDs, testCase.size)), job.ChunkCount())
		})
	}
}

func TestPodRange(t *testing.T) {
	r := PodRange{RangeStart: 5, RangeEnd: 7, TotalCPUs: 8}
	assert.Equal(t, 3, r.PodCPUs())
	assert.Equal(t, 0, r.RequestedSlots(3))
	assert.Equal(t, 0, r.RequestedSlots(5))
	assert.Equal(t, 1, r.RequestedSlots(6))
	assert.Equal(t, 3, r.RequestedSlots(100))
	assert.NoError(t, r.Validate())
	assert.Error(t, PodRange{RangeStart: 3, RangeEnd: 2, TotalCPUs: 4}.Validate())
	assert.Error(t, PodRange{RangeStart: 0, RangeEnd: 4, TotalCPUs: 4}.Validate())
	assert.Error(t, PodRange{}.Validate())
}
