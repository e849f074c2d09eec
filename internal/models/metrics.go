package models

import "time"

// SystemMetrics is the JSON snapshot served next to the Prometheus endpoint.
type SystemMetrics struct {
	RequestsTotal    uint64    `json:"requests_total"`
	CacheHits        uint64    `json:"cache_hits"`
	CacheMisses      uint64    `json:"cache_misses"`
	CacheHitRatio    float64   `json:"cache_hit_ratio"`
	TimetableRuns    uint64    `json:"timetable_runs"`
	PartialRuns      uint64    `json:"partial_runs"`
	SessionsPlaced   uint64    `json:"sessions_placed"`
	SessionsUnplaced uint64    `json:"sessions_unplaced"`
	Goroutines       int       `json:"goroutines"`
	GeneratedAt      time.Time `json:"generated_at"`
}
