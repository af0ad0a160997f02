// Package slack posts the finished analysis to a channel: a short summary
// message plus the full markdown report as a file upload.
package slack

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/slack-go/slack"

	"insightbot/internal/aggregate"
	"insightbot/internal/domain"
)

// API is the slice of the Slack client the notifier needs. *slack.Client
// satisfies it.
type API interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
	UploadFileV2(params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

type Notifier struct {
	api       API
	channelID string
	logger    *log.Logger
}

func NewNotifier(api API, channelID string, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{api: api, channelID: channelID, logger: logger}
}

// Deliver posts the summary line and uploads the report file.
func (n *Notifier) Deliver(q domain.Query, summary aggregate.Summary, reportPath string, tokensUsed int64) error {
	headline := fmt.Sprintf("Feedback analysis for *%s* (%s, %s to %s): %d tickets classified, %d top issues, %d critical patterns (tokens used: %s)",
		q.ProductName, q.Platform,
		q.StartDate.Format("2006-01-02"), q.EndDate.Format("2006-01-02"),
		summary.TotalClassified, len(summary.TopIssues), len(summary.CriticalPatterns),
		formatTokenCount(tokensUsed))

	if _, _, err := n.api.PostMessage(n.channelID, slack.MsgOptionText(headline, false)); err != nil {
		return fmt.Errorf("posting summary message: %w", err)
	}

	fi, err := os.Stat(reportPath)
	if err != nil {
		return fmt.Errorf("stating report file: %w", err)
	}
	if fi.Size() <= 0 {
		return fmt.Errorf("report file is empty: %s", reportPath)
	}

	_, err = n.api.UploadFileV2(slack.UploadFileV2Parameters{
		File:           reportPath,
		FileSize:       int(fi.Size()),
		Filename:       filepath.Base(reportPath),
		Channel:        n.channelID,
		Title:          fmt.Sprintf("%s feedback report", q.ProductName),
		InitialComment: fmt.Sprintf("Full report for %s to %s", q.StartDate.Format("2006-01-02"), q.EndDate.Format("2006-01-02")),
	})
	if err != nil {
		return fmt.Errorf("uploading report file: %w", err)
	}

	n.logger.Printf("slack delivered channel=%s file=%s", n.channelID, filepath.Base(reportPath))
	return nil
}

func formatTokenCount(tokens int64) string {
	if tokens < 1000 {
		return fmt.Sprintf("%d", tokens)
	}
	rounded := (tokens + 50) / 100
	whole := rounded / 10
	decimal := rounded % 10
	if decimal == 0 {
		return fmt.Sprintf("%dk", whole)
	}
	return fmt.Sprintf("%d.%dk", whole, decimal)
}
