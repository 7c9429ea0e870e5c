package model

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPayload is returned when an encoded job payload cannot be decoded.
var ErrInvalidPayload = errors.New("model: invalid job payload")

// payload keys understood by the coordination layer; everything else is
// carried through to the execution engine untouched.
const (
	keyJobKey         = "job_key"
	keyTotalCalls     = "total_calls"
	keyChunkSize      = "chunksize"
	keyCallIDs        = "call_ids"
	keyDataByteRanges = "data_byte_ranges"
	keyLogLevel       = "log_level"
	keyRuntimeName    = "runtime_name"
)

// ByteRange is an inclusive [start, end] offset pair into externally stored job data.
type ByteRange [2]int64

// WorkUnit is the indivisible quantum of execution.
type WorkUnit struct {
	CallID string
	Range  ByteRange
}

// Job represents one submitted batch of work units.
type Job struct {
	JobKey         string
	TotalCalls     int
	ChunkSize      int
	CallIDs        []string
	DataByteRanges []ByteRange
	LogLevel       string
	RuntimeName    string
	// Extra keeps every other payload field verbatim for the execution engine.
	Extra map[string]json.RawMessage
}

// UnmarshalJSON decodes known fields and retains the rest in Extra.
func (j *Job) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("%w: payload is null", ErrInvalidPayload)
	}
	targets := map[string]interface{}{
		keyJobKey:         &j.JobKey,
		keyTotalCalls:     &j.TotalCalls,
		keyChunkSize:      &j.ChunkSize,
		keyCallIDs:        &j.CallIDs,
		keyDataByteRanges: &j.DataByteRanges,
		keyLogLevel:       &j.LogLevel,
		keyRuntimeName:    &j.RuntimeName,
	}
	for key, target := range targets {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("%w: field %s: %v", ErrInvalidPayload, key, err)
		}
		delete(fields, key)
	}
	j.Extra = fields
	return nil
}

// MarshalJSON merges Extra with the known fields.
func (j Job) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(j.Extra)+7)
	for k, v := range j.Extra {
		out[k] = v
	}
	out[keyJobKey] = j.JobKey
	out[keyTotalCalls] = j.TotalCalls
	out[keyChunkSize] = j.ChunkSize
	out[keyCallIDs] = nonNilStrings(j.CallIDs)
	out[keyDataByteRanges] = nonNilRanges(j.DataByteRanges)
	if j.LogLevel != "" {
		out[keyLogLevel] = j.LogLevel
	}
	if j.RuntimeName != "" {
		out[keyRuntimeName] = j.RuntimeName
	}
	return json.Marshal(out)
}

// DecodeJob decodes a base64 encoded JSON job payload.
func DecodeJob(encoded string) (*Job, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	job := &Job{}
	if err := json.Unmarshal(data, job); err != nil {
		if errors.Is(err, ErrInvalidPayload) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return job, nil
}

// Encode returns the base64 encoded JSON representation of the job.
func (j *Job) Encode() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job %s: %w", j.JobKey, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Unit returns the work unit at position i of CallIDs.
func (j *Job) Unit(i int) (WorkUnit, error) {
	if i < 0 || i >= len(j.CallIDs) {
		return WorkUnit{}, fmt.Errorf("unit index %d out of range [0,%d)", i, len(j.CallIDs))
	}
	unit := WorkUnit{CallID: j.CallIDs[i]}
	if idx := j.rangeIndex(i); idx >= 0 {
		unit.Range = j.DataByteRanges[idx]
	}
	return unit, nil
}

// rangeIndex resolves the data byte range slot of the unit at position i:
// a numeric call id addresses the range directly, otherwise the position does.
func (j *Job) rangeIndex(i int) int {
	if n, err := strconv.Atoi(j.CallIDs[i]); err == nil && n >= 0 && n < len(j.DataByteRanges) {
		return n
	}
	if i < len(j.DataByteRanges) {
		return i
	}
	return -1
}

// Narrow returns a copy of the job bound to the units at the given positions.
func (j *Job) Narrow(positions ...int) (*Job, error) {
	ret := *j
	ret.CallIDs = make([]string, 0, len(positions))
	ret.DataByteRanges = make([]ByteRange, 0, len(positions))
	for _, pos := range positions {
		unit, err := j.Unit(pos)
		if err != nil {
			return nil, err
		}
		ret.CallIDs = append(ret.CallIDs, unit.CallID)
		ret.DataByteRanges = append(ret.DataByteRanges, unit.Range)
	}
	return &ret, nil
}

// ChunkCount returns the number of chunks the job splits into.
func (j *Job) ChunkCount() int {
	size := normalizeChunkSize(j.ChunkSize)
	return (len(j.CallIDs) + size - 1) / size
}

// ChunkPositions returns, per chunk, the CallIDs positions it covers.
func (j *Job) ChunkPositions() [][]int {
	size := normalizeChunkSize(j.ChunkSize)
	ret := make([][]int, 0, j.ChunkCount())
	for start := 0; start < len(j.CallIDs); start += size {
		end := start + size
		if end > len(j.CallIDs) {
			end = len(j.CallIDs)
		}
		positions := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			positions = append(positions, i)
		}
		ret = append(ret, positions)
	}
	return ret
}

// Chunk returns a copy of the job narrowed to chunk k.
func (j *Job) Chunk(k int) (*Job, error) {
	count := j.ChunkCount()
	if k < 0 || k >= count {
		return nil, fmt.Errorf("chunk %d out of range [0,%d) for job %s", k, count, j.JobKey)
	}
	return j.Narrow(j.ChunkPositions()[k]...)
}

// Chunks groups call ids in order into chunks of up to size elements.
func Chunks(callIDs []string, size int) [][]string {
	size = normalizeChunkSize(size)
	var ret [][]string
	for start := 0; start < len(callIDs); start += size {
		end := start + size
		if end > len(callIDs) {
			end = len(callIDs)
		}
		ret = append(ret, callIDs[start:end])
	}
	return ret
}

func normalizeChunkSize(size int) int {
	if size <= 0 {
		return 1
	}
	return size
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilRanges(v []ByteRange) []ByteRange {
	if v == nil {
		return []ByteRange{}
	}
	return v
}
