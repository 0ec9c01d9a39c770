// Package matcher pairs Grafana alerts with JSM Ops alerts using alias
// fingerprints and a weighted similarity score. All matching is pure
// computation over the inputs; persistence and remote calls stay with the
// caller.
package matcher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/alertsync/alertsync/internal/connectors"
)

// Kind classifies how a pair was matched.
type Kind string

const (
	KindAlias             Kind = "alias"
	KindHighConfidence    Kind = "high_confidence"
	KindContentSimilarity Kind = "content_similarity"
	KindLowConfidence     Kind = "low_confidence"
	KindNone              Kind = "none"

	// KindTagsAndContent is retained for records written by the earlier
	// tag-index matcher; the current scorer never emits it.
	KindTagsAndContent Kind = "tags_and_content"
)

const (
	// DefaultThreshold is the minimum composite score a pair must exceed
	// to be considered a match.
	DefaultThreshold = 30

	aliasConfidence = 95

	// aliasCompositeBoost is what an exact alias hit contributes to the
	// composite score when alias short-circuiting is disabled. It stands
	// in for a maximal name+cluster signal.
	aliasCompositeBoost = 65

	highConfidenceBand    = 90
	contentSimilarityBand = 70
)

// Result is the match outcome for a single Grafana alert. Ops is nil when
// no ops alert reached the threshold.
type Result struct {
	Alert      connectors.GrafanaAlert
	Ops        *connectors.OpsAlert
	Kind       Kind
	Confidence int
}

// Matcher pairs the two alert collections. A Matcher is stateless and safe
// for concurrent use.
type Matcher struct {
	threshold  int
	aliasFirst bool
}

// New returns a Matcher with the given score threshold. When aliasFirst is
// set, exact alias fingerprint hits short-circuit similarity scoring.
func New(threshold int, aliasFirst bool) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold, aliasFirst: aliasFirst}
}

// Fingerprint derives the stable alias identity of a Grafana alert. Ops
// alerts created by the Grafana integration carry the same value in their
// alias field.
func Fingerprint(a connectors.GrafanaAlert) string {
	summary := a.Summary
	if len(summary) > 64 {
		summary = summary[:64]
	}
	raw := fmt.Sprintf("%s|%s|%s|%s",
		strings.ToLower(a.Name),
		strings.ToLower(a.Cluster),
		strings.ToLower(a.Severity),
		strings.ToLower(summary),
	)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

type candidate struct {
	alertIdx int
	opsIdx   int
	score    int
}

// Match pairs every Grafana alert with at most one ops alert, and every ops
// alert with at most one Grafana alert. Results come back in the order of
// the alerts slice, one Result per input alert. The output depends only on
// the inputs.
func (m *Matcher) Match(alerts []connectors.GrafanaAlert, ops []connectors.OpsAlert) []Result {
	results := make([]Result, len(alerts))
	for i, a := range alerts {
		results[i] = Result{Alert: a, Kind: KindNone}
	}

	opsByAlias := make(map[string]int, len(ops))
	for i, o := range ops {
		if o.Alias == "" {
			continue
		}
		if _, ok := opsByAlias[o.Alias]; !ok {
			opsByAlias[o.Alias] = i
		}
	}

	opsTaken := make([]bool, len(ops))
	alertDone := make([]bool, len(alerts))

	if m.aliasFirst {
		for i, a := range alerts {
			idx, ok := opsByAlias[Fingerprint(a)]
			if !ok || opsTaken[idx] {
				continue
			}
			opsTaken[idx] = true
			alertDone[i] = true
			results[i] = Result{
				Alert:      a,
				Ops:        &ops[idx],
				Kind:       KindAlias,
				Confidence: aliasConfidence,
			}
		}
	}

	// Score every remaining pair, then assign greedily from the best score
	// down so that a stronger pairing is never starved by input order.
	var candidates []candidate
	for i, a := range alerts {
		if alertDone[i] {
			continue
		}
		fp := Fingerprint(a)
		for j, o := range ops {
			if opsTaken[j] {
				continue
			}
			score := compositeScore(a, o)
			if !m.aliasFirst && o.Alias == fp {
				score += aliasCompositeBoost
				if score > maxScore {
					score = maxScore
				}
			}
			if score > m.threshold {
				candidates = append(candidates, candidate{alertIdx: i, opsIdx: j, score: score})
			}
		}
	}

	sort.SliceStable(candidates, func(x, y int) bool {
		if candidates[x].score != candidates[y].score {
			return candidates[x].score > candidates[y].score
		}
		if candidates[x].opsIdx != candidates[y].opsIdx {
			return candidates[x].opsIdx < candidates[y].opsIdx
		}
		return candidates[x].alertIdx < candidates[y].alertIdx
	})

	for _, c := range candidates {
		if alertDone[c.alertIdx] || opsTaken[c.opsIdx] {
			continue
		}
		alertDone[c.alertIdx] = true
		opsTaken[c.opsIdx] = true
		results[c.alertIdx] = Result{
			Alert:      alerts[c.alertIdx],
			Ops:        &ops[c.opsIdx],
			Kind:       classify(c.score),
			Confidence: c.score,
		}
	}

	return results
}

func classify(score int) Kind {
	switch {
	case score >= highConfidenceBand:
		return KindHighConfidence
	case score >= contentSimilarityBand:
		return KindContentSimilarity
	default:
		return KindLowConfidence
	}
}
