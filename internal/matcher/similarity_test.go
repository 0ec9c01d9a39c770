package matcher

import (
	"testing"
	"time"

	"github.com/alertsync/alertsync/internal/connectors"
)

func TestNameScore(t *testing.T) {
	tests := []struct {
		name     string
		ops      connectors.OpsAlert
		expected int
	}{
		{"HighCPUUsage", connectors.OpsAlert{Tags: []string{"alertname:HighCPUUsage"}}, nameContainmentScore},
		{"HighCPUUsage", connectors.OpsAlert{Message: "[FIRING] HighCPUUsage on node-3"}, nameContainmentScore},
		{"High CPU Usage node", connectors.OpsAlert{Message: "cpu usage high on some node"}, nameTokenScore},
		{"DiskFull", connectors.OpsAlert{Message: "replication lag"}, 0},
		{"", connectors.OpsAlert{Message: "anything"}, 0},
	}

	for _, tt := range tests {
		if got := nameScore(tt.name, tt.ops); got != tt.expected {
			t.Errorf("nameScore(%q, %+v) = %d, expected %d", tt.name, tt.ops, got, tt.expected)
		}
	}
}

func TestExtractOpsCluster(t *testing.T) {
	tests := []struct {
		ops      connectors.OpsAlert
		expected string
	}{
		{connectors.OpsAlert{Tags: []string{"cluster:prod-eu"}}, "prod-eu"},
		{connectors.OpsAlert{Tags: []string{"instance:node-7"}}, "node-7"},
		{connectors.OpsAlert{Message: "High load on cluster: prod-eu since 10:00"}, "prod-eu"},
		{connectors.OpsAlert{Message: "Cluster=stage-us is degraded"}, "stage-us"},
		{connectors.OpsAlert{Message: "nothing useful here"}, ""},
	}

	for _, tt := range tests {
		if got := extractOpsCluster(tt.ops); got != tt.expected {
			t.Errorf("extractOpsCluster(%+v) = %q, expected %q", tt.ops, got, tt.expected)
		}
	}
}

func TestSeverityMatchScore(t *testing.T) {
	tests := []struct {
		severity string
		priority string
		expected int
	}{
		{"critical", "P1", severityScore},
		{"warning", "P2", severityScore},
		{"info", "P4", severityScore},
		{"critical", "P3", 0},
		{"critical", "", 0},
		{"", "P1", 0},
		{"critical", "P9", 0},
	}

	for _, tt := range tests {
		if got := severityMatchScore(tt.severity, tt.priority); got != tt.expected {
			t.Errorf("severityMatchScore(%q, %q) = %d, expected %d", tt.severity, tt.priority, got, tt.expected)
		}
	}
}

func TestContentScoreCapped(t *testing.T) {
	summary := "database replication lag exceeds threshold primary secondary postgres wal"
	message := "database replication lag exceeds threshold primary secondary postgres wal"

	if got := contentScore(summary, message); got != contentScoreCap {
		t.Errorf("Expected capped score %d, got %d", contentScoreCap, got)
	}
	if got := contentScore("database lag", "database lag"); got != 2*contentTokenPoints {
		t.Errorf("Expected %d, got %d", 2*contentTokenPoints, got)
	}
	if got := contentScore("", "anything"); got != 0 {
		t.Errorf("Expected 0 for empty summary, got %d", got)
	}
}

func TestTemporalScore(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		offset   time.Duration
		expected int
	}{
		{2 * time.Minute, 10},
		{-4 * time.Minute, 10},
		{10 * time.Minute, 5},
		{45 * time.Minute, 2},
		{3 * time.Hour, 0},
	}

	for _, tt := range tests {
		created := base.Add(tt.offset).Format(time.RFC3339Nano)
		if got := temporalScore(base, created); got != tt.expected {
			t.Errorf("temporalScore(offset %v) = %d, expected %d", tt.offset, got, tt.expected)
		}
	}

	if got := temporalScore(time.Time{}, base.Format(time.RFC3339Nano)); got != 0 {
		t.Errorf("Expected 0 for zero start, got %d", got)
	}
	if got := temporalScore(base, "not-a-timestamp"); got != 0 {
		t.Errorf("Expected 0 for malformed timestamp, got %d", got)
	}
}

func TestCompositeScoreCapped(t *testing.T) {
	now := time.Now().UTC()
	a := connectors.GrafanaAlert{
		Name:     "HighCPUUsage",
		Cluster:  "prod-eu",
		Severity: "critical",
		Summary:  "cpu usage above threshold node saturated",
		StartsAt: now,
	}
	b := connectors.OpsAlert{
		Priority:  "P1",
		Tags:      []string{"alertname:HighCPUUsage", "cluster:prod-eu"},
		Message:   "cpu usage above threshold node saturated",
		Source:    "Grafana",
		CreatedAt: now.Format(time.RFC3339Nano),
	}

	if got := compositeScore(a, b); got != maxScore {
		t.Errorf("Expected capped composite %d, got %d", maxScore, got)
	}
}
