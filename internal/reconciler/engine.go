// Package reconciler implements the reconciliation pass that merges
// Grafana alerts and JSM Ops alerts into persisted alert records.
package reconciler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/alertsync/alertsync/internal/config"
	"github.com/alertsync/alertsync/internal/connectors"
	"github.com/alertsync/alertsync/internal/database"
	"github.com/alertsync/alertsync/internal/matcher"
)

const autoResolvedBy = "Auto-resolved (Grafana)"

// Notifier receives a best-effort summary after each committed pass.
type Notifier interface {
	NotifyPass(ctx context.Context, summary *Summary)
}

// Options tunes a reconciliation engine.
type Options struct {
	OpsFetchLimit int
	FetchTimeout  time.Duration
	PassTimeout   time.Duration
	AutoClose     bool
}

// Summary is the outcome of one reconciliation pass.
type Summary struct {
	PassID     string    `json:"pass_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	FetchedGrafana int `json:"fetched_grafana"`
	FetchedOps     int `json:"fetched_ops"`
	Excluded       int `json:"excluded"`

	Matched          int `json:"matched"`
	Created          int `json:"created"`
	Updated          int `json:"updated"`
	Resolved         int `json:"resolved"`
	OrphansRefreshed int `json:"orphans_refreshed"`
	RecordErrors     int `json:"record_errors"`
}

// Engine runs reconciliation passes. All mutations of a pass are buffered
// and committed in a single transaction, so a failed pass leaves the store
// untouched.
type Engine struct {
	db       *gorm.DB
	grafana  connectors.GrafanaSource
	ops      connectors.OpsSource
	matcher  *matcher.Matcher
	policy   config.ExclusionPolicy
	opts     Options
	notifier Notifier

	mu sync.Mutex
}

// NewEngine creates a reconciliation engine. notifier may be nil.
func NewEngine(db *gorm.DB, grafana connectors.GrafanaSource, ops connectors.OpsSource,
	m *matcher.Matcher, policy config.ExclusionPolicy, opts Options, notifier Notifier) *Engine {
	if opts.OpsFetchLimit <= 0 {
		opts.OpsFetchLimit = 500
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.PassTimeout <= 0 {
		opts.PassTimeout = 5 * time.Minute
	}
	return &Engine{
		db:       db,
		grafana:  grafana,
		ops:      ops,
		matcher:  m,
		policy:   policy,
		opts:     opts,
		notifier: notifier,
	}
}

// Run executes one pass under the configured pass deadline. Used by the
// scheduler; errors are logged, not returned.
func (e *Engine) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.PassTimeout)
	defer cancel()

	if _, err := e.Sync(ctx); err != nil {
		log.Printf("Reconciliation pass failed: %v", err)
	}
}

// Sync runs a single reconciliation pass. It refuses to overlap a running
// pass with ErrPassInProgress. On success the returned summary reflects
// exactly what was committed.
func (e *Engine) Sync(ctx context.Context) (*Summary, error) {
	if !e.mu.TryLock() {
		return nil, ErrPassInProgress
	}
	defer e.mu.Unlock()

	summary := &Summary{
		PassID:    uuid.NewString()[:8],
		StartedAt: time.Now().UTC(),
	}
	log.Printf("[pass %s] Starting reconciliation", summary.PassID)

	// Fetch both sides up front. Either failure aborts the pass before
	// anything is written.
	alerts, err := e.fetchGrafana(ctx)
	if err != nil {
		return nil, err
	}
	summary.FetchedGrafana = len(alerts)

	opsAlerts, err := e.fetchOps(ctx)
	if err != nil {
		return nil, err
	}
	summary.FetchedOps = len(opsAlerts)

	alerts = e.filterAlerts(alerts, summary)

	results := e.matcher.Match(alerts, opsAlerts)

	// Buffer every mutation; nothing touches the store until commit.
	pending := make(map[string]*database.AlertRecord)
	activeIDs := make(map[string]bool, len(alerts))
	for _, a := range alerts {
		activeIDs[a.ID] = true
	}

	e.mergeResults(results, pending, summary)
	e.resolveStale(ctx, activeIDs, pending, summary)
	e.refreshOrphans(opsAlerts, activeIDs, pending, summary)

	if err := e.commit(pending); err != nil {
		return nil, err
	}

	summary.FinishedAt = time.Now().UTC()
	log.Printf("[pass %s] Done in %s: %d fetched (grafana), %d fetched (ops), %d excluded, %d matched, %d created, %d updated, %d resolved, %d orphans refreshed, %d record errors",
		summary.PassID, summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond),
		summary.FetchedGrafana, summary.FetchedOps, summary.Excluded,
		summary.Matched, summary.Created, summary.Updated, summary.Resolved,
		summary.OrphansRefreshed, summary.RecordErrors)

	if e.notifier != nil {
		e.notifier.NotifyPass(ctx, summary)
	}
	return summary, nil
}

func (e *Engine) fetchGrafana(ctx context.Context) ([]connectors.GrafanaAlert, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	defer cancel()
	return e.grafana.FetchActive(fetchCtx)
}

func (e *Engine) fetchOps(ctx context.Context) ([]connectors.OpsAlert, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	defer cancel()
	return e.ops.FetchAll(fetchCtx, e.opts.OpsFetchLimit)
}

// filterAlerts drops alerts the exclusion policy denies before any matching
// happens, so excluded alerts never create or update records.
func (e *Engine) filterAlerts(alerts []connectors.GrafanaAlert, summary *Summary) []connectors.GrafanaAlert {
	kept := alerts[:0]
	for _, a := range alerts {
		if e.policy.Excludes(a.Cluster, a.Labels["env"]) {
			summary.Excluded++
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

// mergeResults folds the match results into pending record mutations. A
// failure on one record is logged and skipped; the rest of the pass
// proceeds.
func (e *Engine) mergeResults(results []matcher.Result, pending map[string]*database.AlertRecord, summary *Summary) {
	for _, r := range results {
		record, err := database.FindAlertRecordByAlertID(e.db, r.Alert.ID)
		if err != nil {
			log.Printf("[pass %s] Failed to load record for alert %s: %v", summary.PassID, r.Alert.ID, err)
			summary.RecordErrors++
			continue
		}
		if record == nil {
			record = &database.AlertRecord{AlertID: r.Alert.ID}
			summary.Created++
		} else {
			summary.Updated++
		}

		applyGrafana(record, r.Alert)
		record.Status = database.RecordStatusActive

		if r.Ops != nil {
			applyOps(record, r.Ops)
			record.MatchKind = string(r.Kind)
			record.MatchConfidence = r.Confidence
			summary.Matched++
		} else {
			// No qualifying ops alert this pass: the mirrored fields are
			// cleared rather than left stale, so a binding only exists
			// while the matcher can still justify it.
			clearOps(record)
			record.MatchKind = string(matcher.KindNone)
			record.MatchConfidence = 0
		}

		pending[record.AlertID] = record
	}
}

// resolveStale marks every active record whose alert left the Grafana
// active set as resolved. Resolution is monotonic within the pass: a
// record resolved here is never reactivated by a later step of the same
// pass. When auto-close is on, the bound ops alert gets a best-effort
// close.
func (e *Engine) resolveStale(ctx context.Context, activeIDs map[string]bool, pending map[string]*database.AlertRecord, summary *Summary) {
	records, err := database.ListActiveAlertRecords(e.db)
	if err != nil {
		log.Printf("[pass %s] Failed to list active records: %v", summary.PassID, err)
		summary.RecordErrors++
		return
	}

	now := time.Now().UTC()
	for i := range records {
		record := &records[i]
		if activeIDs[record.AlertID] {
			continue
		}

		record.Status = database.RecordStatusResolved
		if record.ResolvedAt == nil {
			record.ResolvedAt = &now
		}
		if record.ResolvedBy == "" {
			record.ResolvedBy = autoResolvedBy
		}
		summary.Resolved++

		if e.opts.AutoClose && record.IsBound() && record.OpsStatus != database.OpsStatusResolved {
			if err := e.ops.Close(ctx, record.OpsAlertID, "Alert resolved in Grafana", "alertsync"); err != nil {
				log.Printf("[pass %s] Best-effort close of ops alert %s failed: %v", summary.PassID, record.OpsAlertID, err)
			} else {
				record.OpsStatus = database.OpsStatusResolved
			}
		}

		pending[record.AlertID] = record
	}
}

// refreshOrphans re-mirrors ops-side fields onto bound records whose
// Grafana alert was absent from this pass. Match kind and confidence are
// preserved; only the mirrored ops state moves.
func (e *Engine) refreshOrphans(opsAlerts []connectors.OpsAlert, activeIDs map[string]bool, pending map[string]*database.AlertRecord, summary *Summary) {
	records, err := database.ListBoundAlertRecords(e.db)
	if err != nil {
		log.Printf("[pass %s] Failed to list bound records: %v", summary.PassID, err)
		summary.RecordErrors++
		return
	}

	opsByID := make(map[string]*connectors.OpsAlert, len(opsAlerts))
	for i := range opsAlerts {
		opsByID[opsAlerts[i].ID] = &opsAlerts[i]
	}

	for i := range records {
		record := &records[i]
		if activeIDs[record.AlertID] {
			continue // merged this pass already
		}
		o, ok := opsByID[record.OpsAlertID]
		if !ok {
			// The ops alert vanished from the fetch window; last-seen
			// mirror state stays as is.
			continue
		}

		target := record
		if buffered, ok := pending[record.AlertID]; ok {
			target = buffered
		}
		prev := target.OpsStatus
		applyOps(target, o)
		if prev == database.OpsStatusResolved && target.OpsStatus != database.OpsStatusResolved {
			// A close issued earlier in this pass outranks the pre-close
			// snapshot from the ops fetch.
			target.OpsStatus = prev
		}
		pending[target.AlertID] = target
		summary.OrphansRefreshed++
	}
}

// commit writes every buffered mutation in one transaction.
func (e *Engine) commit(pending map[string]*database.AlertRecord) error {
	if len(pending) == 0 {
		return nil
	}
	err := e.db.Transaction(func(tx *gorm.DB) error {
		for _, record := range pending {
			if err := tx.Save(record).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &CommitError{Err: err}
	}
	return nil
}

// applyGrafana copies the Grafana-side fields onto a record verbatim.
func applyGrafana(record *database.AlertRecord, a connectors.GrafanaAlert) {
	record.AlertName = a.Name
	record.Cluster = a.Cluster
	record.Pod = a.Pod
	record.Severity = a.Severity
	record.Summary = a.Summary
	record.Description = a.Description
	record.GeneratorURL = a.GeneratorURL
	if !a.StartsAt.IsZero() {
		t := a.StartsAt
		record.StartedAt = &t
	}
	labels := make(database.JSONB, len(a.Labels))
	for k, v := range a.Labels {
		labels[k] = v
	}
	record.Labels = labels
}

// applyOps mirrors the ops-side fields onto a record. Malformed timestamps
// degrade the single field.
func clearOps(record *database.AlertRecord) {
	record.OpsAlertID = ""
	record.OpsTinyID = ""
	record.OpsStatus = database.OpsStatusOpen
	record.OpsOwner = ""
	record.OpsPriority = ""
	record.OpsTags = nil
	record.OpsCount = 0
	record.OpsCreatedAt = nil
	record.OpsUpdatedAt = nil
	record.OpsLastOccurredAt = nil
}

func applyOps(record *database.AlertRecord, o *connectors.OpsAlert) {
	record.OpsAlertID = o.ID
	record.OpsTinyID = o.TinyID
	record.OpsStatus = mapOpsStatus(o)
	record.OpsOwner = o.Owner
	record.OpsPriority = o.Priority
	record.OpsTags = database.StringList(o.Tags)
	record.OpsCount = o.Count
	record.OpsCreatedAt = parseOpsTime("createdAt", o.CreatedAt)
	record.OpsUpdatedAt = parseOpsTime("updatedAt", o.UpdatedAt)
	record.OpsLastOccurredAt = parseOpsTime("lastOccurredAt", o.LastOccurredAt)

	if o.Acknowledged && record.AcknowledgedAt == nil {
		record.AcknowledgedAt = record.OpsUpdatedAt
		if record.AcknowledgedAt == nil {
			now := time.Now().UTC()
			record.AcknowledgedAt = &now
		}
		if record.AcknowledgedBy == "" {
			if o.Owner != "" {
				record.AcknowledgedBy = o.Owner
			} else {
				record.AcknowledgedBy = "jsm-ops"
			}
		}
	}
}

func mapOpsStatus(o *connectors.OpsAlert) database.OpsStatus {
	switch o.Status {
	case "closed", "resolved":
		return database.OpsStatusResolved
	case "acked", "acknowledged":
		return database.OpsStatusAcknowledged
	}
	if o.Acknowledged {
		return database.OpsStatusAcknowledged
	}
	return database.OpsStatusOpen
}

func parseOpsTime(field, value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		log.Printf("Ignoring malformed ops timestamp: %v", &ParseError{Field: field, Value: value, Err: err})
		return nil
	}
	utc := t.UTC()
	return &utc
}
