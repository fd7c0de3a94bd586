package domain

import "time"

// Stage tags recorded on run errors.
const (
	StageSchedule       = "schedule"
	StageParser         = "parser"
	StageIndexFetch     = "index_fetch"
	StageIndexParse     = "index_parse"
	StageRawRead        = "raw_read"
	StageRawWrite       = "raw_write"
	StageCanonicalTouch = "canonical_touch"
	StageDetailFetch    = "detail_fetch"
	StageDetailParse    = "detail_parse"
	StageCanonicalWrite = "canonical_write"
	StageGraph          = "graph"
	StagePublish        = "publish"
)

// RunError is one failure recorded during a run.
type RunError struct {
	SourceID   string `json:"sourceId"`
	SourceName string `json:"sourceName"`
	Where      string `json:"where"`
	Message    string `json:"message"`
}

// RunSummary aggregates the outcome of one batch run.
type RunSummary struct {
	RunID            string     `json:"runId"`
	StartedAt        time.Time  `json:"startedAt"`
	FinishedAt       time.Time  `json:"finishedAt"`
	SourcesProcessed int        `json:"sourcesProcessed"`
	SourcesSkipped   int        `json:"sourcesSkipped"`
	RawSeen          int        `json:"rawSeen"`
	RawNew           int        `json:"rawNew"`
	RawChanged       int        `json:"rawChanged"`
	DetailFetched    int        `json:"detailFetched"`
	PromotedDeals    int        `json:"promotedDeals"`
	UpdatedDeals     int        `json:"updatedDeals"`
	HeldDeals        int        `json:"heldDeals"`
	Errors           []RunError `json:"errors"`
}
