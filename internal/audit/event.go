package audit

import (
	"time"
)

// Event records one publish of the consolidated database. Events form a
// hash chain so the trail is tamper-evident.
type Event struct {
	Version   string    `json:"version"`
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`

	Publish  PublishInfo          `json:"publish"`
	Tables   map[string]TableInfo `json:"tables"`
	Producer ProducerInfo         `json:"producer"`
	Chain    ChainInfo            `json:"chain"`
}

// PublishInfo identifies the published artifact.
type PublishInfo struct {
	RunID         string `json:"run_id"`
	Destination   string `json:"destination"`
	StagingSHA256 string `json:"staging_sha256"`
}

// TableInfo carries one table's outcome in the published database.
type TableInfo struct {
	RowCount  int64  `json:"row_count"`
	FilesOK   int    `json:"files_ok"`
	FilesFail int    `json:"files_fail"`
	Status    string `json:"status"`
}

// ProducerInfo identifies the software that produced the data.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha"`
}

// ChainInfo provides hash chaining for the tamper-evident trail.
type ChainInfo struct {
	PrevEventHash string `json:"prev_event_hash"`
	EventHash     string `json:"event_hash"`
}
