package models

import "time"

const (
	BudgetRequestStatusRequested = "requested"
	BudgetRequestStatusReceived  = "received"
)

// BudgetRequest is the dependent marker row for the outbound budget webhook.
// Its existence is the exactly-once guard: the dispatcher fires only when no
// row references the property yet.
type BudgetRequest struct {
	ID            uint   `gorm:"primary_key" json:"id"`
	PropertyId    uint   `gorm:"index;not null" json:"property_id"`
	DocumentURL   string `gorm:"type:text" json:"document_url"`
	DocumentIndex int    `json:"document_index"`
	Status        string `gorm:"size:20;not null" json:"status"`

	RequestedAt time.Time `json:"requested_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
