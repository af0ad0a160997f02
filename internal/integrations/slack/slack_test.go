package slack

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"insightbot/internal/aggregate"
	"insightbot/internal/domain"
)

type fakeAPI struct {
	messages []string
	channels []string
	uploads  []slack.UploadFileV2Parameters
	postErr  error
}

func (f *fakeAPI) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	if f.postErr != nil {
		return "", "", f.postErr
	}
	f.channels = append(f.channels, channelID)
	f.messages = append(f.messages, "posted")
	return channelID, "ts", nil
}

func (f *fakeAPI) UploadFileV2(params slack.UploadFileV2Parameters) (*slack.FileSummary, error) {
	f.uploads = append(f.uploads, params)
	return &slack.FileSummary{ID: "F1"}, nil
}

func testQuery() domain.Query {
	start, _ := time.Parse("2006-01-02", "2024-01-01")
	end, _ := time.Parse("2006-01-02", "2024-01-31")
	return domain.Query{ProductName: "Word Trip", Platform: domain.PlatformIOS, StartDate: start, EndDate: end}
}

func TestDeliverPostsAndUploads(t *testing.T) {
	reportPath := filepath.Join(t.TempDir(), "report.md")
	if err := os.WriteFile(reportPath, []byte("# report\n"), 0o644); err != nil {
		t.Fatalf("write report: %v", err)
	}

	api := &fakeAPI{}
	n := NewNotifier(api, "C123", nil)
	summary := aggregate.Summary{TotalClassified: 12, TopIssues: make([]aggregate.Issue, 2)}

	if err := n.Deliver(testQuery(), summary, reportPath, 12345); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(api.channels) != 1 || api.channels[0] != "C123" {
		t.Fatalf("channels %v", api.channels)
	}
	if len(api.uploads) != 1 {
		t.Fatalf("uploads %v", api.uploads)
	}
	up := api.uploads[0]
	if up.Filename != "report.md" || up.Channel != "C123" || up.FileSize != 9 {
		t.Fatalf("upload params %+v", up)
	}
	if !strings.Contains(up.Title, "Word Trip") {
		t.Fatalf("upload title %q", up.Title)
	}
}

func TestDeliverRejectsEmptyReport(t *testing.T) {
	reportPath := filepath.Join(t.TempDir(), "empty.md")
	if err := os.WriteFile(reportPath, nil, 0o644); err != nil {
		t.Fatalf("write report: %v", err)
	}
	n := NewNotifier(&fakeAPI{}, "C123", nil)
	if err := n.Deliver(testQuery(), aggregate.Summary{}, reportPath, 0); err == nil {
		t.Fatal("want error for empty report file")
	}
}

func TestFormatTokenCount(t *testing.T) {
	cases := map[int64]string{
		999:    "999",
		1000:   "1k",
		1250:   "1.3k",
		55000:  "55k",
		123456: "123.5k",
	}
	for tokens, want := range cases {
		if got := formatTokenCount(tokens); got != want {
			t.Errorf("formatTokenCount(%d) = %q, want %q", tokens, got, want)
		}
	}
}
