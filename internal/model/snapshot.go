package model

import "time"

// ResourceSnapshot is one sample of the resources used by an engine
// process tree.
type ResourceSnapshot struct {
	Time       time.Time `json:"time"`
	CPUPercent float64   `json:"cpu_percent"` // summed over the tree, can exceed 100
	RSS        uint64    `json:"rss"`
	ReadBytes  uint64    `json:"read_bytes"`
	WriteBytes uint64    `json:"write_bytes"`
	Procs      int       `json:"procs"`
}

// ProgressEvent is a recognized progress marker. Seq is strictly
// increasing within one output stream.
type ProgressEvent struct {
	Seq      uint64  `json:"seq"`
	Stage    string  `json:"stage"`
	Fraction float64 `json:"fraction"`
	Detail   string  `json:"detail,omitempty"`
}
