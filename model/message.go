package model

// Announcement is published by a pod to request a slot range.
type Announcement struct {
	NumCPUs    int    `json:"num_cpus"`
	ReplyQueue string `json:"reply_queue"`
}

// Assignment is the allocator reply carrying the pod's slot range.
type Assignment struct {
	RangeStart int `json:"range_start"`
	RangeEnd   int `json:"range_end"`
	TotalCPUs  int `json:"total_cpus"`
}

// PodRange converts the assignment to a pod range.
func (a *Assignment) PodRange() PodRange {
	return PodRange{RangeStart: a.RangeStart, RangeEnd: a.RangeEnd, TotalCPUs: a.TotalCPUs}
}

// Broadcast carries an encoded job payload to every pod.
type Broadcast struct {
	Payload string `json:"payload"`
}
