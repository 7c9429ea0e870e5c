package model

// Counter is the persisted form of a dispenser index counter.
type Counter struct {
	JobKey string `json:"jobKey"`
	Next   int    `json:"next"`
}
