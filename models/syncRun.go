package models

import "time"

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredRetry  = "retry"
	SyncTriggeredSystem = "system"
)

type SyncRun struct {
	ID          uint   `gorm:"primary_key" json:"id"`
	Status      string `gorm:"size:20;not null" json:"status"`
	TriggeredBy string `gorm:"size:20" json:"triggered_by"`

	TotalProcessed int `json:"total_processed"`
	TotalCreated   int `json:"total_created"`
	TotalUpdated   int `json:"total_updated"`
	TotalOrphaned  int `json:"total_orphaned"`
	ErrorCount     int `json:"error_count"`

	StatsJSON   []byte `gorm:"type:json" json:"stats"`
	ParentRunId *uint  `gorm:"index" json:"parent_run_id"`

	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	DurationMs int64      `json:"duration_ms"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type SyncError struct {
	ID          uint   `gorm:"primary_key" json:"id"`
	SyncRunId   uint   `gorm:"index;not null" json:"sync_run_id"`
	EntityType  string `gorm:"size:50" json:"entity_type"`
	ExternalId  string `gorm:"size:128" json:"external_id"`
	ErrorCode   string `gorm:"size:64" json:"error_code"`
	Message     string `gorm:"type:text" json:"message"`
	PayloadJSON []byte `gorm:"type:json" json:"payload"`
	Retryable   bool   `gorm:"default:false" json:"retryable"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
