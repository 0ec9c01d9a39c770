package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/alertsync/alertsync/internal/connectors"
	"github.com/alertsync/alertsync/internal/database"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&database.AlertRecord{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

type fakeOpsActions struct {
	acked    []string
	closed   []string
	closeErr error
}

func (f *fakeOpsActions) FetchAll(ctx context.Context, limit int) ([]connectors.OpsAlert, error) {
	return nil, nil
}

func (f *fakeOpsActions) Acknowledge(ctx context.Context, alertID, note, actor string) error {
	f.acked = append(f.acked, alertID)
	return nil
}

func (f *fakeOpsActions) Close(ctx context.Context, alertID, note, actor string) error {
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closed = append(f.closed, alertID)
	return nil
}

func seedRecord(t *testing.T, db *gorm.DB, record database.AlertRecord) *database.AlertRecord {
	if record.Status == "" {
		record.Status = database.RecordStatusActive
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("Failed to seed record: %v", err)
	}
	return &record
}

func TestListFilters(t *testing.T) {
	db := setupTestDB(t)
	seedRecord(t, db, database.AlertRecord{AlertID: "a1", AlertName: "HighCPUUsage", Cluster: "prod-eu", Severity: "critical"})
	seedRecord(t, db, database.AlertRecord{AlertID: "a2", AlertName: "DiskFull", Cluster: "prod-us", Severity: "warning"})
	seedRecord(t, db, database.AlertRecord{AlertID: "a3", AlertName: "DiskFull", Cluster: "prod-eu", Severity: "warning", Status: database.RecordStatusResolved})

	s := NewAlertService(db, nil)

	records, total, err := s.List(AlertFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 || len(records) != 3 {
		t.Errorf("Expected 3 records, got %d (total %d)", len(records), total)
	}

	records, total, _ = s.List(AlertFilter{Severity: "warning"}, 10, 0)
	if total != 2 {
		t.Errorf("Expected 2 warning records, got %d", total)
	}

	records, total, _ = s.List(AlertFilter{Cluster: "prod-eu", Status: string(database.RecordStatusActive)}, 10, 0)
	if total != 1 || records[0].AlertID != "a1" {
		t.Errorf("Expected only a1, got total %d", total)
	}

	_, total, _ = s.List(AlertFilter{Search: "disk"}, 10, 0)
	if total != 2 {
		t.Errorf("Expected 2 records matching search, got %d", total)
	}
}

func TestListPagination(t *testing.T) {
	db := setupTestDB(t)
	for _, id := range []string{"a1", "a2", "a3", "a4", "a5"} {
		seedRecord(t, db, database.AlertRecord{AlertID: id, AlertName: "Test"})
	}

	s := NewAlertService(db, nil)
	records, total, err := s.List(AlertFilter{}, 2, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 5 {
		t.Errorf("Expected total 5, got %d", total)
	}
	if len(records) != 2 {
		t.Errorf("Expected page of 2, got %d", len(records))
	}
}

func TestGetNotFound(t *testing.T) {
	s := NewAlertService(setupTestDB(t), nil)
	_, err := s.Get("missing")
	if !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("Expected ErrAlertNotFound, got %v", err)
	}
}

func TestAcknowledgeStampsAndForwards(t *testing.T) {
	db := setupTestDB(t)
	seedRecord(t, db, database.AlertRecord{
		AlertID:    "a1",
		AlertName:  "HighCPUUsage",
		OpsAlertID: "ops-1",
		OpsStatus:  database.OpsStatusOpen,
	})
	ops := &fakeOpsActions{}
	s := NewAlertService(db, ops)

	record, err := s.Acknowledge(context.Background(), "a1", "alice@example.com")
	if err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}

	if record.AcknowledgedBy != "alice@example.com" || record.AcknowledgedAt == nil {
		t.Errorf("Expected ack stamp, got %q / %v", record.AcknowledgedBy, record.AcknowledgedAt)
	}
	if record.OpsStatus != database.OpsStatusAcknowledged {
		t.Errorf("Expected ops status acknowledged, got %s", record.OpsStatus)
	}
	if len(ops.acked) != 1 || ops.acked[0] != "ops-1" {
		t.Errorf("Expected remote acknowledge of ops-1, got %v", ops.acked)
	}
}

func TestResolveRemoteFailureStillStampsLocally(t *testing.T) {
	db := setupTestDB(t)
	seedRecord(t, db, database.AlertRecord{
		AlertID:    "a1",
		OpsAlertID: "ops-1",
		OpsStatus:  database.OpsStatusOpen,
	})
	ops := &fakeOpsActions{closeErr: errors.New("remote unavailable")}
	s := NewAlertService(db, ops)

	record, err := s.Resolve(context.Background(), "a1", "bob@example.com")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if record.Status != database.RecordStatusResolved {
		t.Errorf("Expected resolved, got %s", record.Status)
	}
	if record.ResolvedBy != "bob@example.com" || record.ResolvedAt == nil {
		t.Errorf("Expected resolve stamp, got %q / %v", record.ResolvedBy, record.ResolvedAt)
	}
	if record.OpsStatus == database.OpsStatusResolved {
		t.Error("Expected ops status untouched when remote close fails")
	}
}

func TestResolveUnboundSkipsRemote(t *testing.T) {
	db := setupTestDB(t)
	seedRecord(t, db, database.AlertRecord{AlertID: "a1"})
	ops := &fakeOpsActions{}
	s := NewAlertService(db, ops)

	if _, err := s.Resolve(context.Background(), "a1", "bob@example.com"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(ops.closed) != 0 {
		t.Errorf("Expected no remote close for unbound record, got %v", ops.closed)
	}
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)
	seedRecord(t, db, database.AlertRecord{AlertID: "a1", OpsAlertID: "ops-1"})
	seedRecord(t, db, database.AlertRecord{AlertID: "a2"})
	seedRecord(t, db, database.AlertRecord{AlertID: "a3", Status: database.RecordStatusResolved, OpsAlertID: "ops-2"})

	stats, err := NewAlertService(db, nil).Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 || stats.Active != 2 || stats.Resolved != 1 || stats.Bound != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestExportCSV(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now().UTC()
	seedRecord(t, db, database.AlertRecord{
		AlertID:   "a1",
		AlertName: "HighCPUUsage",
		Cluster:   "prod-eu",
		Severity:  "critical",
		StartedAt: &now,
		OpsCount:  3,
	})
	seedRecord(t, db, database.AlertRecord{AlertID: "a2", AlertName: "DiskFull", Severity: "warning"})

	var buf strings.Builder
	if err := NewAlertService(db, nil).ExportCSV(&buf, AlertFilter{Severity: "critical"}); err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected header plus 1 row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "alert_id,alert_name,cluster") {
		t.Errorf("Unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "HighCPUUsage") || strings.Contains(buf.String(), "DiskFull") {
		t.Errorf("Unexpected export body: %s", buf.String())
	}
}
