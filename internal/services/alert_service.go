// Package services holds the application services behind the HTTP API.
package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/alertsync/alertsync/internal/connectors"
	"github.com/alertsync/alertsync/internal/database"
)

// ErrAlertNotFound is returned when no record exists for an alert ID.
var ErrAlertNotFound = errors.New("alert record not found")

// AlertFilter narrows record listings and exports. Zero values mean no
// constraint.
type AlertFilter struct {
	Status   string
	Severity string
	Cluster  string
	Search   string
	From     *time.Time
	To       *time.Time
}

// AlertStats is the aggregate view used by the info endpoint.
type AlertStats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Resolved int64 `json:"resolved"`
	Bound    int64 `json:"bound"`
}

// AlertService reads and mutates alert records. Remote ops actions are
// best-effort: the local stamp always lands, a failed remote call is
// logged.
type AlertService struct {
	db  *gorm.DB
	ops connectors.OpsSource
}

// NewAlertService creates a new alert service. ops may be nil when no
// ops connector is configured; remote actions are then skipped.
func NewAlertService(db *gorm.DB, ops connectors.OpsSource) *AlertService {
	return &AlertService{db: db, ops: ops}
}

// List returns records matching the filter, newest first, plus the total
// matching count for pagination.
func (s *AlertService) List(filter AlertFilter, limit, offset int) ([]database.AlertRecord, int64, error) {
	query := s.filtered(filter)

	var total int64
	if err := query.Model(&database.AlertRecord{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []database.AlertRecord
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&records).Error
	return records, total, err
}

// Get returns the record for an alert ID or ErrAlertNotFound.
func (s *AlertService) Get(alertID string) (*database.AlertRecord, error) {
	record, err := database.FindAlertRecordByAlertID(s.db, alertID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrAlertNotFound
	}
	return record, nil
}

// Acknowledge stamps a record as acknowledged by actor and forwards the
// acknowledgement to the bound ops alert when there is one.
func (s *AlertService) Acknowledge(ctx context.Context, alertID, actor string) (*database.AlertRecord, error) {
	record, err := s.Get(alertID)
	if err != nil {
		return nil, err
	}

	if s.ops != nil && record.IsBound() && record.OpsStatus == database.OpsStatusOpen {
		if err := s.ops.Acknowledge(ctx, record.OpsAlertID, "Acknowledged via alertsync", actor); err != nil {
			log.Printf("Best-effort acknowledge of ops alert %s failed: %v", record.OpsAlertID, err)
		}
	}

	now := time.Now().UTC()
	record.AcknowledgedBy = actor
	record.AcknowledgedAt = &now
	if record.OpsStatus == database.OpsStatusOpen {
		record.OpsStatus = database.OpsStatusAcknowledged
	}

	if err := s.db.Save(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// Resolve marks a record resolved by actor and closes the bound ops alert
// when there is one.
func (s *AlertService) Resolve(ctx context.Context, alertID, actor string) (*database.AlertRecord, error) {
	record, err := s.Get(alertID)
	if err != nil {
		return nil, err
	}

	if s.ops != nil && record.IsBound() && record.OpsStatus != database.OpsStatusResolved {
		if err := s.ops.Close(ctx, record.OpsAlertID, "Resolved via alertsync", actor); err != nil {
			log.Printf("Best-effort close of ops alert %s failed: %v", record.OpsAlertID, err)
		} else {
			record.OpsStatus = database.OpsStatusResolved
		}
	}

	now := time.Now().UTC()
	record.Status = database.RecordStatusResolved
	record.ResolvedBy = actor
	if record.ResolvedAt == nil {
		record.ResolvedAt = &now
	}

	if err := s.db.Save(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// Stats returns aggregate record counts.
func (s *AlertService) Stats() (*AlertStats, error) {
	stats := &AlertStats{}

	total, bound, err := database.CountAlertRecords(s.db)
	if err != nil {
		return nil, err
	}
	stats.Total = total
	stats.Bound = bound

	if err := s.db.Model(&database.AlertRecord{}).Where("status = ?", database.RecordStatusActive).Count(&stats.Active).Error; err != nil {
		return nil, err
	}
	stats.Resolved = stats.Total - stats.Active
	return stats, nil
}

// ExportCSV streams all records matching the filter as CSV.
func (s *AlertService) ExportCSV(w io.Writer, filter AlertFilter) error {
	var records []database.AlertRecord
	if err := s.filtered(filter).Order("created_at DESC").Find(&records).Error; err != nil {
		return fmt.Errorf("failed to load records for export: %w", err)
	}

	cw := csv.NewWriter(w)
	header := []string{
		"alert_id", "alert_name", "cluster", "pod", "severity", "status",
		"started_at", "summary", "ops_alert_id", "ops_tiny_id", "ops_status",
		"ops_owner", "ops_priority", "ops_count", "match_kind", "match_confidence",
		"acknowledged_by", "acknowledged_at", "resolved_by", "resolved_at", "created_at",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		row := []string{
			r.AlertID, r.AlertName, r.Cluster, r.Pod, r.Severity, string(r.Status),
			formatTime(r.StartedAt), r.Summary, r.OpsAlertID, r.OpsTinyID, string(r.OpsStatus),
			r.OpsOwner, r.OpsPriority, strconv.Itoa(r.OpsCount), r.MatchKind, strconv.Itoa(r.MatchConfidence),
			r.AcknowledgedBy, formatTime(r.AcknowledgedAt), r.ResolvedBy, formatTime(r.ResolvedAt),
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *AlertService) filtered(filter AlertFilter) *gorm.DB {
	query := s.db.Model(&database.AlertRecord{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Cluster != "" {
		query = query.Where("cluster = ?", filter.Cluster)
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(alert_name) LIKE ? OR LOWER(summary) LIKE ?", pattern, pattern)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}
	return query
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
