package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// StringList is a custom type for JSON-encoded string arrays
type StringList []string

// Scan implements the sql.Scanner interface
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, l)
}

// Value implements the driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// RecordStatus is the lifecycle status of an AlertRecord, tracking whether
// the underlying Grafana alert is still firing. It is independent from the
// mirrored ops-side status.
type RecordStatus string

const (
	RecordStatusActive   RecordStatus = "active"
	RecordStatusResolved RecordStatus = "resolved"
)

// OpsStatus is the ops-side (JSM) status mirrored into an AlertRecord,
// mapped into the legacy-compatible vocabulary.
type OpsStatus string

const (
	OpsStatusOpen         OpsStatus = "open"
	OpsStatusAcknowledged OpsStatus = "acknowledged"
	OpsStatusResolved     OpsStatus = "resolved"
)

// AlertRecord is the persisted merged view of one underlying incident
// across Grafana and JSM Ops. Keyed by the Grafana alert ID, which is
// unique and never reused. Records are never deleted; they transition to
// resolved when the alert disappears from the Grafana active set.
type AlertRecord struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Grafana-side fields, copied verbatim on every pass
	AlertID      string     `gorm:"uniqueIndex;size:255;not null" json:"alert_id"`
	AlertName    string     `gorm:"size:255;index" json:"alert_name"`
	Cluster      string     `gorm:"size:255" json:"cluster"`
	Pod          string     `gorm:"size:255" json:"pod"`
	Severity     string     `gorm:"size:50" json:"severity"`
	Summary      string     `gorm:"type:text" json:"summary"`
	Description  string     `gorm:"type:text" json:"description"`
	StartedAt    *time.Time `json:"started_at"`
	GeneratorURL string     `gorm:"type:text" json:"generator_url"`
	Labels       JSONB      `gorm:"type:jsonb" json:"labels"`

	// Lifecycle status: active while the alert appears in the Grafana
	// active fetch, resolved once it disappears.
	Status RecordStatus `gorm:"type:varchar(20);default:'active';index" json:"status"`

	// Ops-side (JSM) binding and mirrored fields
	OpsAlertID        string     `gorm:"size:255;index" json:"ops_alert_id"`
	OpsTinyID         string     `gorm:"size:50" json:"ops_tiny_id"`
	OpsStatus         OpsStatus  `gorm:"type:varchar(20);default:'open'" json:"ops_status"`
	OpsOwner          string     `gorm:"size:255" json:"ops_owner"`
	OpsPriority       string     `gorm:"size:10" json:"ops_priority"`
	OpsTags           StringList `gorm:"type:jsonb" json:"ops_tags"`
	OpsCreatedAt      *time.Time `json:"ops_created_at"`
	OpsUpdatedAt      *time.Time `json:"ops_updated_at"`
	OpsLastOccurredAt *time.Time `json:"ops_last_occurred_at"`
	OpsCount          int        `json:"ops_count"`

	// Match bookkeeping from the reconciliation pass
	MatchKind       string `gorm:"size:50" json:"match_kind"`
	MatchConfidence int    `json:"match_confidence"`

	// Manual-action stamps, set by user action or inferred from ops state
	AcknowledgedBy string     `gorm:"size:255" json:"acknowledged_by"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
	ResolvedBy     string     `gorm:"size:255" json:"resolved_by"`
	ResolvedAt     *time.Time `json:"resolved_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AlertRecord) TableName() string {
	return "alert_records"
}

// IsBound reports whether the record carries an ops alert binding.
func (r *AlertRecord) IsBound() bool {
	return r.OpsAlertID != ""
}

// SyncJob is a persisted scheduler job definition.
type SyncJob struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	CronExpression string    `gorm:"size:128;not null" json:"cron_expression"`
	Enabled        bool      `gorm:"default:true" json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (SyncJob) TableName() string {
	return "sync_jobs"
}

// NotifySettings stores the Slack pass-summary notifier configuration
// (singleton row, disabled by default).
type NotifySettings struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BotToken  string    `gorm:"type:text" json:"bot_token"`
	Channel   string    `gorm:"type:varchar(255)" json:"channel"`
	Enabled   bool      `gorm:"default:false" json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (NotifySettings) TableName() string {
	return "notify_settings"
}

// IsActive returns true if the notifier is enabled and configured
func (n *NotifySettings) IsActive() bool {
	return n.Enabled && n.BotToken != "" && n.Channel != ""
}
