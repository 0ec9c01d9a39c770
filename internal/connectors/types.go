package connectors

import (
	"context"
	"fmt"
	"time"
)

// GrafanaAlert is one active alert reported by Grafana (Source A).
type GrafanaAlert struct {
	ID           string            `json:"alert_id"`
	Name         string            `json:"alert_name"`
	Cluster      string            `json:"cluster"`
	Pod          string            `json:"pod"`
	Severity     string            `json:"severity"`
	Summary      string            `json:"summary"`
	Description  string            `json:"description"`
	StartsAt     time.Time         `json:"started_at"`
	Labels       map[string]string `json:"labels"`
	GeneratorURL string            `json:"generator_url"`
}

// OpsAlert is one alert tracked by JSM Ops (Source B). Timestamps stay as
// the wire's RFC3339 strings; consumers parse them leniently so a malformed
// value degrades a single signal instead of failing the alert.
type OpsAlert struct {
	ID              string   `json:"id"`
	TinyID          string   `json:"tinyId"`
	Status          string   `json:"status"` // open, acked, closed
	Acknowledged    bool     `json:"acknowledged"`
	Owner           string   `json:"owner"`
	Priority        string   `json:"priority"` // P1..P5
	Alias           string   `json:"alias"`
	Tags            []string `json:"tags"`
	Message         string   `json:"message"`
	CreatedAt       string   `json:"createdAt"`
	UpdatedAt       string   `json:"updatedAt"`
	LastOccurredAt  string   `json:"lastOccurredAt"`
	Count           int      `json:"count"`
	IntegrationName string   `json:"integrationName"`
	Source          string   `json:"source"`
}

// GrafanaSource is the narrow interface the reconciliation engine consumes
// from the Grafana side.
type GrafanaSource interface {
	FetchActive(ctx context.Context) ([]GrafanaAlert, error)
}

// OpsSource is the narrow interface the engine consumes from the JSM Ops
// side. Acknowledge and Close are best-effort remote actions.
type OpsSource interface {
	FetchAll(ctx context.Context, limit int) ([]OpsAlert, error)
	Acknowledge(ctx context.Context, alertID, note, actor string) error
	Close(ctx context.Context, alertID, note, actor string) error
}

// FetchError is a connector fetch failure (network, auth, malformed
// response). It aborts the current reconciliation pass.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %s failed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// RemoteActionError is an acknowledge/close call failure. The action is
// best-effort; local bookkeeping proceeds regardless.
type RemoteActionError struct {
	Action  string
	AlertID string
	Err     error
}

func (e *RemoteActionError) Error() string {
	return fmt.Sprintf("%s of ops alert %s failed: %v", e.Action, e.AlertID, e.Err)
}

func (e *RemoteActionError) Unwrap() error {
	return e.Err
}
