// Package aggregate rolls per-ticket classifications up into the insight
// summary that drives the report: category distribution, ranked top issues,
// critical patterns and recent-change correlations.
package aggregate

import (
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"insightbot/internal/domain"
)

// Config tunes the pattern and correlation detectors. Zero values fall back
// to the defaults below.
type Config struct {
	MinClusterSize         int
	LowConfidenceThreshold float64
	CorrelationWindow      time.Duration
	TopIssuesLimit         int
}

func DefaultConfig() Config {
	return Config{
		MinClusterSize:         3,
		LowConfidenceThreshold: 0.70,
		CorrelationWindow:      14 * 24 * time.Hour,
		TopIssuesLimit:         10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinClusterSize <= 0 {
		c.MinClusterSize = d.MinClusterSize
	}
	if c.LowConfidenceThreshold <= 0 {
		c.LowConfidenceThreshold = d.LowConfidenceThreshold
	}
	if c.CorrelationWindow <= 0 {
		c.CorrelationWindow = d.CorrelationWindow
	}
	if c.TopIssuesLimit <= 0 {
		c.TopIssuesLimit = d.TopIssuesLimit
	}
	return c
}

// Issue is one (category, feature) cluster in the ranked top-issues list.
type Issue struct {
	Category          string   `json:"category"`
	FeatureTag        string   `json:"feature_tag"`
	Count             int      `json:"count"`
	AverageConfidence float64  `json:"average_confidence"`
	TicketIDs         []int64  `json:"ticket_ids"`
	SampleSummaries   []string `json:"sample_summaries"`
}

// Pattern flags a cluster that crosses a configured alarm threshold.
type Pattern struct {
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	FeatureTag  string `json:"feature_tag,omitempty"`
	Count       int    `json:"count"`
	Description string `json:"description"`
}

// Correlation ties a dated change to the tickets created inside its window.
type Correlation struct {
	ChangeLabel string  `json:"change_label"`
	ChangeDate  string  `json:"change_date"`
	TicketIDs   []int64 `json:"ticket_ids"`
	Count       int     `json:"count"`
}

// Summary is the full aggregation output. All maps and slices are freshly
// allocated per call; the input classifications are never mutated.
type Summary struct {
	TotalClassified       int            `json:"total_classified"`
	AverageConfidence     float64        `json:"average_confidence"`
	CategoryDistribution  map[string]int `json:"category_distribution"`
	SentimentDistribution map[string]int `json:"sentiment_distribution"`
	IntentDistribution    map[string]int `json:"intent_distribution"`
	ExpectedBehaviorCount int            `json:"expected_behavior_count"`
	TopIssues             []Issue        `json:"top_issues"`
	CriticalPatterns      []Pattern      `json:"critical_patterns"`
	ChangeCorrelations    []Correlation  `json:"recent_change_correlations"`
}

type Aggregator struct {
	cfg    Config
	logger *log.Logger
}

func New(cfg Config, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.Default()
	}
	return &Aggregator{cfg: cfg.withDefaults(), logger: logger}
}

// Aggregate is a pure computation over its inputs: the same classifications
// and changes always yield an identical Summary, and the inputs come back
// untouched.
func (a *Aggregator) Aggregate(classifications []domain.Classification, changes []domain.RecentChange) Summary {
	s := Summary{
		TotalClassified:       len(classifications),
		CategoryDistribution:  map[string]int{},
		SentimentDistribution: map[string]int{},
		IntentDistribution:    map[string]int{},
	}
	if len(classifications) == 0 {
		s.ChangeCorrelations = a.changeCorrelations(nil, changes)
		a.logger.Printf("aggregate nothing to summarize")
		return s
	}

	var confidenceSum float64
	for _, c := range classifications {
		confidenceSum += c.Confidence
		s.CategoryDistribution[c.Category]++
		s.SentimentDistribution[c.Sentiment]++
		s.IntentDistribution[c.Intent]++
		if c.IsExpectedBehavior {
			s.ExpectedBehaviorCount++
		}
	}
	s.AverageConfidence = round2(confidenceSum / float64(len(classifications)))

	clusters := a.rankedClusters(classifications)
	s.TopIssues = a.topIssues(clusters)
	s.CriticalPatterns = a.criticalPatterns(clusters)
	s.ChangeCorrelations = a.changeCorrelations(classifications, changes)

	a.logger.Printf("aggregate classified=%d issues=%d patterns=%d correlations=%d",
		s.TotalClassified, len(s.TopIssues), len(s.CriticalPatterns), len(s.ChangeCorrelations))
	return s
}

type clusterKey struct {
	category string
	feature  string
}

type cluster struct {
	key           clusterKey
	count         int
	negatives     int
	confidenceSum float64
	ticketIDs     []int64
	summaries     []string
	earliestID    int64
}

func (cl *cluster) averageConfidence() float64 {
	return cl.confidenceSum / float64(cl.count)
}

// A cluster counts as negative when at least this share of its members
// carry Negative sentiment.
const negativeShareThreshold = 0.7

func (cl *cluster) negative() bool {
	return float64(cl.negatives)/float64(cl.count) >= negativeShareThreshold
}

// rankedClusters groups classifications by (category, featureTag) and ranks
// the clusters: larger first, then higher average confidence, then the
// cluster whose earliest ticket ID is smallest. The full ordering makes the
// output stable across runs.
func (a *Aggregator) rankedClusters(classifications []domain.Classification) []*cluster {
	byKey := map[clusterKey]*cluster{}
	var order []clusterKey
	for _, c := range classifications {
		key := clusterKey{category: c.Category, feature: c.FeatureTag}
		cl, ok := byKey[key]
		if !ok {
			cl = &cluster{key: key, earliestID: c.TicketID}
			byKey[key] = cl
			order = append(order, key)
		}
		cl.count++
		cl.confidenceSum += c.Confidence
		if strings.EqualFold(c.Sentiment, "negative") {
			cl.negatives++
		}
		cl.ticketIDs = append(cl.ticketIDs, c.TicketID)
		if c.ShortSummary != "" && len(cl.summaries) < 3 {
			cl.summaries = append(cl.summaries, c.ShortSummary)
		}
		if c.TicketID < cl.earliestID {
			cl.earliestID = c.TicketID
		}
	}

	clusters := make([]*cluster, 0, len(order))
	for _, key := range order {
		clusters = append(clusters, byKey[key])
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		a, b := clusters[i], clusters[j]
		if a.count != b.count {
			return a.count > b.count
		}
		avgA := a.averageConfidence()
		avgB := b.averageConfidence()
		if avgA != avgB {
			return avgA > avgB
		}
		return a.earliestID < b.earliestID
	})
	return clusters
}

func (a *Aggregator) topIssues(clusters []*cluster) []Issue {
	if len(clusters) > a.cfg.TopIssuesLimit {
		clusters = clusters[:a.cfg.TopIssuesLimit]
	}
	issues := make([]Issue, 0, len(clusters))
	for _, cl := range clusters {
		ids := append([]int64(nil), cl.ticketIDs...)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		issues = append(issues, Issue{
			Category:          cl.key.category,
			FeatureTag:        cl.key.feature,
			Count:             cl.count,
			AverageConfidence: round2(cl.averageConfidence()),
			TicketIDs:         ids,
			SampleSummaries:   cl.summaries,
		})
	}
	return issues
}

// criticalPatterns flags clusters at or above the minimum size in two
// passes: predominantly negative clusters first, then clusters whose average
// confidence sits under the threshold. A cluster can appear in both passes.
// All clusters are considered, not only the ones surviving the top-issues
// truncation.
func (a *Aggregator) criticalPatterns(clusters []*cluster) []Pattern {
	var patterns []Pattern
	for _, cl := range clusters {
		if cl.count < a.cfg.MinClusterSize || !cl.negative() {
			continue
		}
		patterns = append(patterns, Pattern{
			Kind:        "recurring_issue",
			Category:    cl.key.category,
			FeatureTag:  cl.key.feature,
			Count:       cl.count,
			Description: describeCluster(cl.key) + " with predominantly negative sentiment",
		})
	}
	for _, cl := range clusters {
		if cl.count < a.cfg.MinClusterSize || cl.averageConfidence() >= a.cfg.LowConfidenceThreshold {
			continue
		}
		patterns = append(patterns, Pattern{
			Kind:        "low_confidence",
			Category:    cl.key.category,
			FeatureTag:  cl.key.feature,
			Count:       cl.count,
			Description: describeCluster(cl.key) + " classified with low average confidence, may need manual review",
		})
	}
	return patterns
}

func describeCluster(key clusterKey) string {
	if key.feature != "" {
		return key.category + " reports clustered around " + key.feature
	}
	return "repeated " + key.category + " reports"
}

// changeCorrelations matches each dated change against tickets created
// within the window after the change date. Changes without a parsed date are
// skipped; dated changes always get an entry, with Count 0 when no ticket
// falls in the window. Correlation here means temporal proximity only, not
// causation.
func (a *Aggregator) changeCorrelations(classifications []domain.Classification, changes []domain.RecentChange) []Correlation {
	var out []Correlation
	for _, change := range changes {
		if change.Date.IsZero() {
			continue
		}
		windowEnd := change.Date.Add(a.cfg.CorrelationWindow)
		var ids []int64
		for _, c := range classifications {
			if c.TicketCreatedAt.IsZero() {
				continue
			}
			if !c.TicketCreatedAt.Before(change.Date) && !c.TicketCreatedAt.After(windowEnd) {
				ids = append(ids, c.TicketID)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out = append(out, Correlation{
			ChangeLabel: change.Label,
			ChangeDate:  change.Date.Format("2006-01-02"),
			TicketIDs:   ids,
			Count:       len(ids),
		})
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
