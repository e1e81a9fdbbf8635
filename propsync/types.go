package propsync

import (
	"os"
	"strconv"
	"strings"
)

// Record is one raw row fetched from the remote base. Field keys may be
// human-readable names or opaque internal field ids depending on when the
// remote table was last edited; the normalizer tries both.
type Record struct {
	ID          string                 `json:"id"`
	CreatedTime string                 `json:"createdTime"`
	Fields      map[string]interface{} `json:"fields"`
}

// ViewDescriptor maps one remote filtered view onto one phase. Its position
// in ViewOrder is its priority: a later entry wins when the same property
// appears in more than one view.
type ViewDescriptor struct {
	Phase  string
	ViewID string
}

// PhaseAssignment is the winning view assignment for one property during a
// single run. Superseded assignments are discarded, never merged.
type PhaseAssignment struct {
	ExternalId     string
	RemoteRecordId string
	Phase          string
	Priority       int
	Record         Record
}

// viewResult pairs a fetched view with its records for the resolver.
type viewResult struct {
	View     ViewDescriptor
	Priority int
	Records  []Record
}

// SyncErrorDetail is one per-record failure accumulated during a run.
type SyncErrorDetail struct {
	EntityType string `json:"entityType"`
	ExternalId string `json:"externalId"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

// ReconcileResult is the aggregate outcome of one run. Details carries one
// string per accumulated error; callers surface a bounded sample (see
// SampleDetails), full detail goes to the process logs.
type ReconcileResult struct {
	Success              bool           `json:"success"`
	TotalProcessed       int            `json:"totalProcessed"`
	TotalCreated         int            `json:"totalCreated"`
	TotalUpdated         int            `json:"totalUpdated"`
	TotalMovedToOrphaned int            `json:"totalMovedToOrphaned"`
	TotalErrors          int            `json:"totalErrors"`
	TotalLinked          int            `json:"totalLinked"`
	TotalDispatched      int            `json:"totalDispatched"`
	PhaseCounts          map[string]int `json:"phaseCounts"`
	Details              []string       `json:"details"`

	Errors []SyncErrorDetail `json:"-"`
}

const detailSampleSize = 10

// SampleDetails returns the first ten error detail strings for operator
// responses.
func (r ReconcileResult) SampleDetails() []string {
	if len(r.Details) <= detailSampleSize {
		return r.Details
	}
	return r.Details[:detailSampleSize]
}

// Config carries every credential and identifier the engine needs.
// Constructed once at process start and passed into constructors; the
// engine itself reads no environment.
type Config struct {
	APIKey string
	BaseID string

	PropertiesTableID string
	ProjectsTableID   string
	UnitsTableID      string

	BudgetWebhookURL string

	// MaxRecordsPerView caps unranged view queries.
	MaxRecordsPerView int
	WriteMaxRetries   int
}

// Configured reports whether both remote credentials are present. When
// false every remote call degrades to a logged no-op instead of failing.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.BaseID) != ""
}

func LoadConfig() Config {
	return Config{
		APIKey:            strings.TrimSpace(os.Getenv("AIRTABLE_API_KEY")),
		BaseID:            strings.TrimSpace(os.Getenv("AIRTABLE_BASE_ID")),
		PropertiesTableID: envDefault("AIRTABLE_PROPERTIES_TABLE", "Properties"),
		ProjectsTableID:   envDefault("AIRTABLE_PROJECTS_TABLE", "Projects"),
		UnitsTableID:      envDefault("AIRTABLE_UNITS_TABLE", "Units"),
		BudgetWebhookURL:  strings.TrimSpace(os.Getenv("BUDGET_WEBHOOK_URL")),
		MaxRecordsPerView: envIntDefault("SYNC_MAX_RECORDS_PER_VIEW", 5000),
		WriteMaxRetries:   envIntDefault("SYNC_WRITE_MAX_RETRIES", 3),
	}
}

func envDefault(key string, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

type TriggerSyncRequest struct {
	// Reserved for future per-run options; the engine always syncs every
	// tracked view.
}

type StatusResponse struct {
	RemoteConfigured bool             `json:"remoteConfigured"`
	LastRun          *SyncRunResponse `json:"lastRun"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncRunResponse struct {
	ID             uint     `json:"id"`
	Status         string   `json:"status"`
	StartedAt      *string  `json:"startedAt"`
	FinishedAt     *string  `json:"finishedAt"`
	DurationMs     int64    `json:"durationMs"`
	TotalProcessed int      `json:"totalProcessed"`
	TotalCreated   int      `json:"totalCreated"`
	TotalUpdated   int      `json:"totalUpdated"`
	TotalOrphaned  int      `json:"totalOrphaned"`
	ErrorCount     int      `json:"errorCount"`
	TriggeredBy    string   `json:"triggeredBy"`
	Details        []string `json:"details,omitempty"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Errors []SyncErrorResponse `json:"errors"`
}

type SyncErrorResponse struct {
	ID         uint   `json:"id"`
	EntityType string `json:"entityType"`
	ExternalId string `json:"externalId"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncPubSubPayload struct {
	RunId uint `json:"run_id"`
}
