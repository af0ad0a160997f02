// Package report renders the analysis outcome as a markdown report for
// humans and a JSON insights file for machines.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"insightbot/internal/aggregate"
	"insightbot/internal/domain"
)

// Stats carries the pipeline counters that frame the findings.
type Stats struct {
	TicketsFetched  int
	RejectionCounts map[string]int
	TicketsAccepted int
	Classified      int
	Skipped         int
	TokensUsed      int64
	CacheHit        bool
}

// Build renders the full markdown report.
func Build(q domain.Query, summary aggregate.Summary, stats Stats, generatedAt time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Feedback Analysis: %s (%s)\n\n", q.ProductName, q.Platform)
	fmt.Fprintf(&b, "Period: %s to %s\n", q.StartDate.Format("2006-01-02"), q.EndDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Generated: %s\n\n", generatedAt.Format("2006-01-02 15:04 MST"))

	b.WriteString("## Pipeline Overview\n\n")
	source := "Freshdesk API"
	if stats.CacheHit {
		source = "local cache"
	}
	fmt.Fprintf(&b, "- Source: %s\n", source)
	fmt.Fprintf(&b, "- Tickets fetched: %d\n", stats.TicketsFetched)
	fmt.Fprintf(&b, "- Tickets accepted by filters: %d\n", stats.TicketsAccepted)
	fmt.Fprintf(&b, "- Tickets classified: %d (skipped: %d)\n", stats.Classified, stats.Skipped)
	if stats.TokensUsed > 0 {
		fmt.Fprintf(&b, "- LLM tokens used: %d\n", stats.TokensUsed)
	}
	b.WriteString("\n")

	if len(stats.RejectionCounts) > 0 {
		b.WriteString("### Filter Rejections\n\n")
		for _, name := range sortedKeys(stats.RejectionCounts) {
			fmt.Fprintf(&b, "- %s: %d\n", name, stats.RejectionCounts[name])
		}
		b.WriteString("\n")
	}

	b.WriteString("## Executive Summary\n\n")
	if summary.TotalClassified == 0 {
		b.WriteString("No tickets matched the criteria for this period.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%d feedback tickets were analyzed with an average classification confidence of %.2f.\n",
		summary.TotalClassified, summary.AverageConfidence)
	if summary.ExpectedBehaviorCount > 0 {
		fmt.Fprintf(&b, "%d reports describe expected behavior given the game's known constraints.\n",
			summary.ExpectedBehaviorCount)
	}
	b.WriteString("\n")

	writeDistribution(&b, "Category Breakdown", summary.CategoryDistribution, summary.TotalClassified)
	writeDistribution(&b, "Sentiment", summary.SentimentDistribution, summary.TotalClassified)
	writeDistribution(&b, "Intent", summary.IntentDistribution, summary.TotalClassified)

	if len(summary.TopIssues) > 0 {
		b.WriteString("## Top Issues\n\n")
		for i, issue := range summary.TopIssues {
			label := issue.Category
			if issue.FeatureTag != "" {
				label += " / " + issue.FeatureTag
			}
			fmt.Fprintf(&b, "### %d. %s (%d tickets, confidence %.2f)\n\n", i+1, label, issue.Count, issue.AverageConfidence)
			for _, s := range issue.SampleSummaries {
				fmt.Fprintf(&b, "- %s\n", s)
			}
			fmt.Fprintf(&b, "- Tickets: %s\n\n", joinIDs(issue.TicketIDs))
		}
	}

	if len(summary.CriticalPatterns) > 0 {
		b.WriteString("## Critical Patterns\n\n")
		for _, p := range summary.CriticalPatterns {
			fmt.Fprintf(&b, "- **%s** (%d): %s\n", p.Kind, p.Count, p.Description)
		}
		b.WriteString("\n")
	}

	if len(summary.ChangeCorrelations) > 0 {
		b.WriteString("## Recent Change Correlations\n\n")
		b.WriteString("Correlation reflects temporal proximity only and is not evidence of causation.\n\n")
		for _, c := range summary.ChangeCorrelations {
			fmt.Fprintf(&b, "- %s (%s): %d tickets within the window", c.ChangeLabel, c.ChangeDate, c.Count)
			if c.Count > 0 {
				fmt.Fprintf(&b, " (%s)", joinIDs(c.TicketIDs))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}

// WriteReportFile stores the markdown next to the other runs, named by the
// query fingerprint so reruns overwrite their own report.
func WriteReportFile(content, outputDir string, q domain.Query) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, q.Fingerprint()+"_report.md")
	return path, os.WriteFile(path, []byte(content), 0644)
}

// WriteInsightsFile stores the machine-readable summary alongside the report.
func WriteInsightsFile(summary aggregate.Summary, outputDir string, q domain.Query) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling insights: %w", err)
	}
	path := filepath.Join(outputDir, q.Fingerprint()+"_insights.json")
	return path, os.WriteFile(path, data, 0644)
}

func writeDistribution(b *strings.Builder, title string, dist map[string]int, total int) {
	if len(dist) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, name := range sortedByCount(dist) {
		count := dist[name]
		fmt.Fprintf(b, "- %s: %d (%.0f%%)\n", name, count, float64(count)/float64(total)*100)
	}
	b.WriteString("\n")
}

// sortedByCount orders labels by descending count, alphabetical on ties.
func sortedByCount(dist map[string]int) []string {
	names := sortedKeys(dist)
	sort.SliceStable(names, func(i, j int) bool {
		return dist[names[i]] > dist[names[j]]
	})
	return names
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return strings.Join(parts, ", ")
}
