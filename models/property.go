package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Phases form a closed enumeration over the renovation lifecycle.
// Conflict resolution between remote views is priority-based; see
// propsync.ViewOrder for the ordering.
const (
	PhaseNew           = "new"
	PhaseOffer         = "offer"
	PhasePendingBudget = "pending_budget"
	PhaseCleaning      = "cleaning"
	PhaseRenovation    = "renovation"
	PhaseFurnishing    = "furnishing"
	PhaseFinalCheck    = "final_check"
	PhaseListed        = "listed"
	PhaseCompleted     = "completed"

	// PhaseOrphaned quarantines rows no longer visible in any tracked
	// remote view. Distinct from deletion; no delete path exists here.
	PhaseOrphaned = "orphaned"
)

type Property struct {
	ID         uint   `gorm:"primary_key" json:"id"`
	ExternalId string `gorm:"uniqueIndex;size:128;not null" json:"external_id"`
	Phase      string `gorm:"index;size:30;not null" json:"phase"`

	Name           string `gorm:"size:255" json:"name"`
	Address        string `gorm:"type:text" json:"address"`
	AreaCluster    string `gorm:"size:100" json:"area_cluster"`
	ClientName     string `gorm:"size:255" json:"client_name"`
	ClientEmail    string `gorm:"size:255" json:"client_email"`
	RenovationType string `gorm:"size:50" json:"renovation_type"`
	Status         string `gorm:"size:100" json:"status"`
	Notes          string `gorm:"type:text" json:"notes"`

	Rooms            *int            `json:"rooms"`
	SquareMeters     *float64        `json:"square_meters"`
	PurchasePrice    decimal.Decimal `gorm:"type:decimal(20,6)" json:"purchase_price"`
	RenovationBudget decimal.Decimal `gorm:"type:decimal(20,6)" json:"renovation_budget"`

	StartDate    *time.Time `json:"start_date"`
	HandoverDate *time.Time `json:"handover_date"`

	PhotoURLsJSON    []byte `gorm:"type:json" json:"photo_urls"`
	DocumentURLsJSON []byte `gorm:"type:json" json:"document_urls"`

	// RemoteRecordId is the physical identifier in the remote base. It can
	// change when the record moves between logical tables; ExternalId is the
	// stable key. Nil means the row was created locally and is never
	// auto-orphaned.
	RemoteRecordId       *string `gorm:"index;size:64" json:"remote_record_id"`
	RemoteParentRecordId *string `gorm:"index;size:64" json:"remote_parent_record_id"`

	ProjectGroupId *uint `gorm:"index" json:"project_group_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Property) PhotoURLs() []string {
	return decodeURLList(p.PhotoURLsJSON)
}

func (p *Property) DocumentURLs() []string {
	return decodeURLList(p.DocumentURLsJSON)
}

func EncodeURLList(urls []string) []byte {
	if len(urls) == 0 {
		return nil
	}
	b, _ := json.Marshal(urls)
	return b
}

func decodeURLList(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var urls []string
	if err := json.Unmarshal(raw, &urls); err != nil {
		return nil
	}
	return urls
}
