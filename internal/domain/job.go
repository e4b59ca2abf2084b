package domain

import "time"

type JobState string

const (
	JobPreparing     JobState = "preparing"
	JobLoadingAssets JobState = "loading_assets"
	JobBuildingGraph JobState = "building_graph"
	JobEncoding      JobState = "encoding"
	JobFinalizing    JobState = "finalizing"
	JobSucceeded     JobState = "succeeded"
	JobFailed        JobState = "failed"
	JobCancelled     JobState = "cancelled"
)

func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

type Progress struct {
	JobID   string
	State   JobState
	Loaded  int
	Total   int
	Percent float64
}

type Result struct {
	Path      string
	MIME      string
	Extension string
	Size      int64
	Duration  float64
	Sidecar   string
	Elapsed   time.Duration
}
