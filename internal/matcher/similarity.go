package matcher

import (
	"regexp"
	"strings"
	"time"

	"github.com/alertsync/alertsync/internal/connectors"
)

// Score weights for the composite similarity scorer. The total is capped at
// maxScore.
const (
	nameContainmentScore = 40
	nameTokenScore       = 30
	clusterScore         = 25
	severityScore        = 15
	contentScoreCap      = 20
	contentTokenPoints   = 4
	sourceBonus          = 15
	maxScore             = 100

	tokenOverlapRatio = 0.6
)

// priorityToSeverity maps JSM Ops priorities onto Grafana severities.
var priorityToSeverity = map[string]string{
	"P1": "critical",
	"P2": "warning",
	"P3": "info",
	"P4": "info",
	"P5": "info",
}

// stopwords excluded from content-token comparison.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"this": true, "that": true, "has": true, "have": true, "was": true,
	"are": true, "its": true, "not": true, "but": true, "than": true,
	"above": true, "below": true, "alert": true,
}

var clusterPattern = regexp.MustCompile(`(?i)cluster[=:\s]+([a-z0-9._-]+)`)

// compositeScore computes the weighted similarity between a Grafana alert
// and an ops alert. Pure: no I/O, no shared state.
func compositeScore(a connectors.GrafanaAlert, b connectors.OpsAlert) int {
	score := nameScore(a.Name, b)
	score += clusterMatchScore(a.Cluster, b)
	score += severityMatchScore(a.Severity, b.Priority)
	score += contentScore(a.Summary, b.Message)
	score += temporalScore(a.StartsAt, b.CreatedAt)
	score += sourceScore(b)

	if score > maxScore {
		score = maxScore
	}
	return score
}

// nameScore scores alert-name similarity: full substring containment of the
// normalized names beats fuzzy token overlap.
func nameScore(name string, b connectors.OpsAlert) int {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return 0
	}

	opsName := strings.ToLower(opsAlertName(b))
	if opsName == "" {
		return 0
	}

	if strings.Contains(opsName, name) || strings.Contains(name, opsName) {
		return nameContainmentScore
	}

	nameTokens := tokenize(name)
	if len(nameTokens) == 0 {
		return 0
	}
	common := 0
	opsTokens := tokenSet(tokenize(opsName))
	for _, tok := range nameTokens {
		if opsTokens[tok] {
			common++
		}
	}
	if float64(common)/float64(len(nameTokens)) >= tokenOverlapRatio {
		return nameTokenScore
	}
	return 0
}

// opsAlertName extracts the alert name the ops side carries: the
// alertname tag when present, the free-text message otherwise.
func opsAlertName(b connectors.OpsAlert) string {
	for _, tag := range b.Tags {
		if v, ok := strings.CutPrefix(tag, "alertname:"); ok {
			return v
		}
	}
	return b.Message
}

// clusterMatchScore scores cluster identity. The ops side rarely carries a
// dedicated cluster field, so the identifier is pattern-extracted from tags
// or the message.
func clusterMatchScore(cluster string, b connectors.OpsAlert) int {
	cluster = strings.ToLower(strings.TrimSpace(cluster))
	if cluster == "" {
		return 0
	}

	opsCluster := strings.ToLower(extractOpsCluster(b))
	if opsCluster == "" {
		return 0
	}
	if strings.Contains(opsCluster, cluster) || strings.Contains(cluster, opsCluster) {
		return clusterScore
	}
	return 0
}

// extractOpsCluster pulls a cluster identifier out of an ops alert's tags
// (cluster: or instance: prefixes) or its message text.
func extractOpsCluster(b connectors.OpsAlert) string {
	for _, tag := range b.Tags {
		if v, ok := strings.CutPrefix(tag, "cluster:"); ok {
			return v
		}
		if v, ok := strings.CutPrefix(tag, "instance:"); ok {
			return v
		}
	}
	if m := clusterPattern.FindStringSubmatch(b.Message); m != nil {
		return m[1]
	}
	return ""
}

// severityMatchScore scores severity equality through the priority table.
func severityMatchScore(severity, priority string) int {
	if severity == "" || priority == "" {
		return 0
	}
	mapped, ok := priorityToSeverity[strings.ToUpper(priority)]
	if !ok {
		return 0
	}
	if strings.EqualFold(severity, mapped) {
		return severityScore
	}
	return 0
}

// contentScore scores the overlap of meaningful tokens between the Grafana
// summary and the ops message.
func contentScore(summary, message string) int {
	if summary == "" || message == "" {
		return 0
	}

	messageTokens := tokenSet(contentTokens(message))
	common := 0
	for _, tok := range contentTokens(summary) {
		if messageTokens[tok] {
			common++
		}
	}

	score := common * contentTokenPoints
	if score > contentScoreCap {
		score = contentScoreCap
	}
	return score
}

// contentTokens tokenizes text for content comparison, dropping stopwords
// and short tokens.
func contentTokens(s string) []string {
	var out []string
	for _, tok := range tokenize(strings.ToLower(s)) {
		if len(tok) > 2 && !stopwords[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// temporalScore scores how close the alert start is to the ops alert's
// creation. Malformed or missing timestamps contribute 0 without failing
// the match.
func temporalScore(startsAt time.Time, createdAt string) int {
	if startsAt.IsZero() || createdAt == "" {
		return 0
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return 0
	}

	diff := startsAt.Sub(created)
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff < 5*time.Minute:
		return 10
	case diff < 15*time.Minute:
		return 5
	case diff < time.Hour:
		return 2
	default:
		return 0
	}
}

// sourceScore gives a bonus when the ops alert identifies Grafana as its
// originating system.
func sourceScore(b connectors.OpsAlert) int {
	if containsGrafana(b.Source) || containsGrafana(b.IntegrationName) {
		return sourceBonus
	}
	return 0
}

func containsGrafana(s string) bool {
	return strings.Contains(strings.ToLower(s), "grafana")
}

// tokenize splits on non-alphanumeric separators.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9')
	})
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
