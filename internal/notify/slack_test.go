package notify

import (
	"strings"
	"testing"

	"github.com/alertsync/alertsync/internal/reconciler"
)

func TestFormatSummary(t *testing.T) {
	s := &reconciler.Summary{
		PassID:         "ab12cd34",
		FetchedGrafana: 12,
		FetchedOps:     9,
		Excluded:       2,
		Matched:        7,
		Created:        3,
		Updated:        4,
		Resolved:       1,
	}

	text := formatSummary(s)
	for _, want := range []string{"ab12cd34", "12 Grafana", "9 ops", "2 excluded", "created 3", "resolved 1"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected summary to contain %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "record errors") {
		t.Error("Expected no error line for clean pass")
	}

	s.RecordErrors = 2
	if !strings.Contains(formatSummary(s), "2 record errors") {
		t.Error("Expected error line when record errors present")
	}
}
