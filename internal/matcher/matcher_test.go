package matcher

import (
	"fmt"
	"testing"
	"time"

	"github.com/alertsync/alertsync/internal/connectors"
)

func grafanaAlert(name, cluster, severity, summary string) connectors.GrafanaAlert {
	return connectors.GrafanaAlert{
		ID:       "fp-" + name,
		Name:     name,
		Cluster:  cluster,
		Severity: severity,
		Summary:  summary,
	}
}

func TestFingerprintStable(t *testing.T) {
	a := grafanaAlert("HighCPUUsage", "prod-eu", "critical", "CPU above 90%")

	fp1 := Fingerprint(a)
	fp2 := Fingerprint(a)
	if fp1 != fp2 {
		t.Errorf("Fingerprint not stable: %s vs %s", fp1, fp2)
	}
	if len(fp1) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(fp1))
	}

	b := a
	b.Cluster = "prod-us"
	if Fingerprint(b) == fp1 {
		t.Error("Expected different fingerprint for different cluster")
	}
}

func TestFingerprintTruncatesSummary(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	a := grafanaAlert("Test", "prod", "warning", string(long))
	b := grafanaAlert("Test", "prod", "warning", string(long[:64])+"different tail")

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("Expected summaries identical in first 64 chars to fingerprint equal")
	}
}

func TestMatchByAlias(t *testing.T) {
	a := grafanaAlert("DiskFull", "prod-eu", "critical", "Disk usage above 95%")
	ops := []connectors.OpsAlert{
		{ID: "ops-1", Alias: "unrelated-alias", Message: "something else"},
		{ID: "ops-2", Alias: Fingerprint(a), Message: "no textual overlap at all"},
	}

	results := New(DefaultThreshold, true).Match([]connectors.GrafanaAlert{a}, ops)

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Ops == nil || r.Ops.ID != "ops-2" {
		t.Fatalf("Expected alias match to ops-2, got %+v", r.Ops)
	}
	if r.Kind != KindAlias {
		t.Errorf("Expected kind %s, got %s", KindAlias, r.Kind)
	}
	if r.Confidence != 95 {
		t.Errorf("Expected confidence 95, got %d", r.Confidence)
	}
}

func TestMatchBySimilarity(t *testing.T) {
	// Name containment (40) + cluster tag (25) + severity via P1 (15) = 80.
	a := grafanaAlert("HighCPUUsage", "prod-eu", "critical", "")
	ops := []connectors.OpsAlert{{
		ID:       "ops-1",
		Priority: "P1",
		Tags:     []string{"alertname:HighCPUUsage", "cluster:prod-eu"},
		Message:  "CPU usage is high",
	}}

	results := New(DefaultThreshold, true).Match([]connectors.GrafanaAlert{a}, ops)

	r := results[0]
	if r.Ops == nil {
		t.Fatal("Expected a match")
	}
	if r.Confidence != 80 {
		t.Errorf("Expected confidence 80, got %d", r.Confidence)
	}
	if r.Kind != KindContentSimilarity {
		t.Errorf("Expected kind %s, got %s", KindContentSimilarity, r.Kind)
	}
}

func TestMatchHighConfidenceBand(t *testing.T) {
	now := time.Now().UTC()
	a := grafanaAlert("HighCPUUsage", "prod-eu", "critical", "")
	a.StartsAt = now
	ops := []connectors.OpsAlert{{
		ID:        "ops-1",
		Priority:  "P1",
		Tags:      []string{"alertname:HighCPUUsage", "cluster:prod-eu"},
		Source:    "Grafana",
		CreatedAt: now.Add(-2 * time.Minute).Format(time.RFC3339Nano),
	}}

	r := New(DefaultThreshold, true).Match([]connectors.GrafanaAlert{a}, ops)[0]

	if r.Kind != KindHighConfidence {
		t.Errorf("Expected kind %s, got %s (confidence %d)", KindHighConfidence, r.Kind, r.Confidence)
	}
	if r.Confidence > 100 {
		t.Errorf("Confidence exceeds cap: %d", r.Confidence)
	}
}

func TestMatchNothingAboveThreshold(t *testing.T) {
	a := grafanaAlert("DiskFull", "prod-eu", "critical", "Disk usage above 95%")
	ops := []connectors.OpsAlert{{
		ID:      "ops-1",
		Message: "completely unrelated database replication lag",
		Tags:    []string{"team:storage"},
	}}

	r := New(DefaultThreshold, true).Match([]connectors.GrafanaAlert{a}, ops)[0]

	if r.Ops != nil {
		t.Errorf("Expected no match, got ops %s with confidence %d", r.Ops.ID, r.Confidence)
	}
	if r.Kind != KindNone {
		t.Errorf("Expected kind %s, got %s", KindNone, r.Kind)
	}
	if r.Confidence != 0 {
		t.Errorf("Expected confidence 0, got %d", r.Confidence)
	}
}

func TestMatchBestPairWinsRegardlessOfOrder(t *testing.T) {
	// strong scores 80 against the single ops alert, weak scores 55. The
	// strong alert must win even when the weak one comes first.
	strong := grafanaAlert("HighCPUUsage", "prod-eu", "critical", "")
	weak := grafanaAlert("HighCPUUsage", "stage-us", "critical", "")
	ops := []connectors.OpsAlert{{
		ID:       "ops-1",
		Priority: "P1",
		Tags:     []string{"alertname:HighCPUUsage", "cluster:prod-eu"},
	}}

	for _, alerts := range [][]connectors.GrafanaAlert{
		{weak, strong},
		{strong, weak},
	} {
		results := New(DefaultThreshold, true).Match(alerts, ops)
		bound := 0
		for _, r := range results {
			if r.Ops == nil {
				continue
			}
			bound++
			if r.Alert.Cluster != "prod-eu" {
				t.Errorf("Expected prod-eu alert to win, got %s", r.Alert.Cluster)
			}
		}
		if bound != 1 {
			t.Errorf("Expected exactly 1 bound alert, got %d", bound)
		}
	}
}

func TestMatchOpsAlertBoundAtMostOnce(t *testing.T) {
	var alerts []connectors.GrafanaAlert
	for i := 0; i < 5; i++ {
		alerts = append(alerts, grafanaAlert("HighCPUUsage", "prod-eu", "critical", fmt.Sprintf("copy %d", i)))
	}
	ops := []connectors.OpsAlert{{
		ID:       "ops-1",
		Priority: "P1",
		Tags:     []string{"alertname:HighCPUUsage", "cluster:prod-eu"},
	}}

	results := New(DefaultThreshold, true).Match(alerts, ops)

	bound := 0
	for _, r := range results {
		if r.Ops != nil {
			bound++
		}
	}
	if bound != 1 {
		t.Errorf("Expected ops alert bound exactly once, got %d bindings", bound)
	}
}

func TestMatchDeterministic(t *testing.T) {
	alerts := []connectors.GrafanaAlert{
		grafanaAlert("HighCPUUsage", "prod-eu", "critical", "CPU above 90%"),
		grafanaAlert("DiskFull", "prod-eu", "warning", "Disk usage above 85%"),
		grafanaAlert("PodCrashLoop", "stage-us", "info", "Pod restarting"),
	}
	ops := []connectors.OpsAlert{
		{ID: "o1", Priority: "P1", Tags: []string{"alertname:HighCPUUsage", "cluster:prod-eu"}},
		{ID: "o2", Priority: "P2", Tags: []string{"alertname:DiskFull", "cluster:prod-eu"}},
		{ID: "o3", Message: "unrelated noise"},
	}

	m := New(DefaultThreshold, true)
	first := m.Match(alerts, ops)
	for run := 0; run < 10; run++ {
		again := m.Match(alerts, ops)
		for i := range first {
			if (first[i].Ops == nil) != (again[i].Ops == nil) {
				t.Fatalf("Run %d: binding differs for alert %s", run, first[i].Alert.Name)
			}
			if first[i].Ops != nil && first[i].Ops.ID != again[i].Ops.ID {
				t.Fatalf("Run %d: alert %s bound to %s then %s", run, first[i].Alert.Name, first[i].Ops.ID, again[i].Ops.ID)
			}
			if first[i].Confidence != again[i].Confidence {
				t.Fatalf("Run %d: confidence differs for alert %s", run, first[i].Alert.Name)
			}
		}
	}
}

func TestMatchAliasFoldedIntoScore(t *testing.T) {
	// With alias short-circuiting disabled an exact alias still boosts the
	// composite score instead of winning outright.
	a := grafanaAlert("DiskFull", "prod-eu", "critical", "Disk usage above 95%")
	ops := []connectors.OpsAlert{{
		ID:      "ops-1",
		Alias:   Fingerprint(a),
		Message: "no textual overlap at all",
	}}

	r := New(DefaultThreshold, false).Match([]connectors.GrafanaAlert{a}, ops)[0]

	if r.Ops == nil {
		t.Fatal("Expected alias boost to produce a match")
	}
	if r.Kind == KindAlias {
		t.Errorf("Expected banded kind with alias folding, got %s", r.Kind)
	}
	if r.Confidence < aliasCompositeBoost {
		t.Errorf("Expected confidence >= %d, got %d", aliasCompositeBoost, r.Confidence)
	}
}
