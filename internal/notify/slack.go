// Package notify posts reconciliation pass summaries to Slack. The
// notifier is best-effort: failures are logged and never affect a pass.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/slack-go/slack"
	"gorm.io/gorm"

	"github.com/alertsync/alertsync/internal/database"
	"github.com/alertsync/alertsync/internal/reconciler"
)

// SlackNotifier posts pass summaries to the channel configured in the
// notify_settings table. Settings are re-read on every pass so changes
// made through the API take effect without a restart.
type SlackNotifier struct {
	db *gorm.DB
}

func NewSlackNotifier(db *gorm.DB) *SlackNotifier {
	return &SlackNotifier{db: db}
}

// NotifyPass implements reconciler.Notifier. Passes that changed nothing
// do not post.
func (n *SlackNotifier) NotifyPass(ctx context.Context, summary *reconciler.Summary) {
	if summary.Created+summary.Resolved+summary.RecordErrors == 0 {
		return
	}

	settings, err := database.GetNotifySettings(n.db)
	if err != nil {
		log.Printf("Failed to load notify settings: %v", err)
		return
	}
	if !settings.IsActive() {
		return
	}

	client := slack.New(settings.BotToken)
	_, _, err = client.PostMessageContext(ctx, settings.Channel,
		slack.MsgOptionText(formatSummary(summary), false))
	if err != nil {
		log.Printf("Failed to post pass summary to Slack: %v", err)
		return
	}
	log.Printf("[pass %s] Summary posted to %s", summary.PassID, settings.Channel)
}

func formatSummary(s *reconciler.Summary) string {
	text := fmt.Sprintf(":arrows_counterclockwise: *Alert sync pass `%s`*\n"+
		"Fetched %d Grafana / %d ops alerts (%d excluded)\n"+
		"Matched %d, created %d, updated %d, resolved %d, orphans refreshed %d",
		s.PassID, s.FetchedGrafana, s.FetchedOps, s.Excluded,
		s.Matched, s.Created, s.Updated, s.Resolved, s.OrphansRefreshed)
	if s.RecordErrors > 0 {
		text += fmt.Sprintf("\n:warning: %d record errors, see logs", s.RecordErrors)
	}
	return text
}
