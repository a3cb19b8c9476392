package models

import "time"

// FetchStats tracks statistics for one fetch session
type FetchStats struct {
	StartTime      time.Time
	EndTime        time.Time
	Gender         Gender
	PagesFetched   int
	RecordsFetched int
	ResumedAtPage  int // first page actually fetched; 1 for a fresh run
	SourceSwitched bool
	Duration       time.Duration
}
