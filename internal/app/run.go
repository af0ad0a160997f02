package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"insightbot/internal/aggregate"
	"insightbot/internal/config"
	"insightbot/internal/domain"
	"insightbot/internal/gamecontext"
	"insightbot/internal/integrations/llm"
	"insightbot/internal/report"
	"insightbot/internal/storage/cache"
	"insightbot/internal/storage/sqlite"
	"insightbot/internal/textclean"
	"insightbot/internal/ticketfilter"
)

// TicketSource yields raw tickets from the help desk.
type TicketSource interface {
	FetchTickets(ctx context.Context) ([]domain.RawTicket, error)
}

// Classifier turns cleaned tickets into classifications.
type Classifier interface {
	ClassifyAll(ctx context.Context, tickets []domain.CleanedTicket, contextBlock string) (llm.Outcome, error)
}

// Notifier delivers the finished report somewhere visible.
type Notifier interface {
	Deliver(q domain.Query, summary aggregate.Summary, reportPath string, tokensUsed int64) error
}

// Runner wires the pipeline stages together for one analysis run.
type Runner struct {
	Cfg        config.Config
	Cache      *cache.Store
	Source     TicketSource
	Classifier Classifier
	Notifier   Notifier
	DB         *sql.DB
	GameCtx    *gamecontext.Context
	Logger     *log.Logger

	// In/Out drive the cache-reuse prompt; nil means never prompt.
	In  io.Reader
	Out io.Writer
}

// Result summarizes a completed run for callers and tests.
type Result struct {
	Summary      aggregate.Summary
	Stats        report.Stats
	ReportPath   string
	InsightsPath string
	RunID        int64
}

// Run executes the full pipeline: cache or fetch, filter, clean, classify,
// aggregate, report, deliver, record.
func (r *Runner) Run(ctx context.Context, q domain.Query, opts Options) (*Result, error) {
	if r.Logger == nil {
		r.Logger = log.Default()
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	fingerprint := q.Fingerprint()
	r.Logger.Printf("run start fingerprint=%s", fingerprint)

	accepted, stats, err := r.obtainTickets(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	stats.TicketsAccepted = len(accepted)
	if len(accepted) == 0 {
		r.Logger.Printf("run fingerprint=%s no tickets matched", fingerprint)
	}

	normalizer := textclean.NewNormalizer(r.Logger)
	cleaned := normalizer.CleanAll(accepted)

	var contextBlock string
	var changes []domain.RecentChange
	if r.GameCtx != nil {
		contextBlock = r.GameCtx.FormatForPrompt()
		changes = r.GameCtx.DatedChanges()
	}

	var summary aggregate.Summary
	aggCfg := aggregate.Config{
		MinClusterSize:         r.Cfg.MinClusterSize,
		LowConfidenceThreshold: r.Cfg.LowConfidenceThreshold,
		CorrelationWindow:      r.Cfg.CorrelationWindow(),
		TopIssuesLimit:         r.Cfg.TopIssuesLimit,
	}
	if len(cleaned) > 0 {
		outcome, err := r.Classifier.ClassifyAll(ctx, cleaned, contextBlock)
		if err != nil {
			return nil, fmt.Errorf("classification: %w", err)
		}
		stats.Classified = len(outcome.Classifications)
		stats.Skipped = len(outcome.Skipped)
		stats.TokensUsed = outcome.Usage.TotalTokens()
		summary = aggregate.New(aggCfg, r.Logger).Aggregate(outcome.Classifications, changes)
	} else {
		summary = aggregate.New(aggCfg, r.Logger).Aggregate(nil, changes)
	}

	content := report.Build(q, summary, stats, time.Now())
	reportPath, err := report.WriteReportFile(content, r.Cfg.ReportOutputDir, q)
	if err != nil {
		return nil, fmt.Errorf("writing report: %w", err)
	}
	insightsPath, err := report.WriteInsightsFile(summary, r.Cfg.ReportOutputDir, q)
	if err != nil {
		return nil, fmt.Errorf("writing insights: %w", err)
	}
	r.Logger.Printf("run report=%s insights=%s", reportPath, insightsPath)

	if r.Notifier != nil {
		if err := r.Notifier.Deliver(q, summary, reportPath, stats.TokensUsed); err != nil {
			// Delivery failure should not lose the finished analysis.
			r.Logger.Printf("run delivery failed: %v", err)
		}
	}

	result := &Result{
		Summary:      summary,
		Stats:        stats,
		ReportPath:   reportPath,
		InsightsPath: insightsPath,
	}
	if r.DB != nil {
		run := sqlite.NewRunRecord(q)
		run.CacheHit = stats.CacheHit
		run.TicketsFetched = stats.TicketsFetched
		run.TicketsAccepted = stats.TicketsAccepted
		run.TicketsCleaned = len(cleaned)
		run.Classified = stats.Classified
		run.Skipped = stats.Skipped
		run.AvgConfidence = summary.AverageConfidence
		run.TokensUsed = stats.TokensUsed
		run.ReportPath = reportPath
		id, err := sqlite.InsertRun(r.DB, run)
		if err != nil {
			r.Logger.Printf("run history insert failed: %v", err)
		} else {
			result.RunID = id
		}
	}

	r.Logger.Printf("run done fingerprint=%s classified=%d", fingerprint, stats.Classified)
	return result, nil
}

// obtainTickets returns accepted tickets from the cache or from a fresh
// fetch. The cache holds the full fetched batch; the filter runs on every
// pass, hit or miss, so rejection accounting is always populated.
func (r *Runner) obtainTickets(ctx context.Context, q domain.Query, opts Options) ([]domain.RawTicket, report.Stats, error) {
	stats := report.Stats{}
	fingerprint := q.Fingerprint()

	var raw []domain.RawTicket
	if !opts.RefreshCache {
		batch, found, err := r.Cache.Lookup(fingerprint)
		switch {
		case err != nil && errors.Is(err, cache.ErrCorrupt):
			r.Logger.Printf("cache corrupt fingerprint=%s, refetching: %v", fingerprint, err)
		case err != nil:
			return nil, stats, fmt.Errorf("cache lookup: %w", err)
		case found:
			use := true
			if !opts.Yes && r.In != nil && r.Out != nil {
				p := newPrompter(r.In, r.Out)
				fmt.Fprintf(r.Out, "Found cached data from %s with %d tickets.\n",
					batch.Metadata.FetchedAt.Format("2006-01-02 15:04"), len(batch.Tickets))
				use, err = p.confirm("Use cached data? (y/n): ")
				if err != nil {
					return nil, stats, err
				}
			}
			if use {
				stats.CacheHit = true
				raw = batch.Tickets
			}
		}
	}

	if !stats.CacheHit {
		fetched, err := r.Source.FetchTickets(ctx)
		if err != nil {
			return nil, stats, fmt.Errorf("fetching tickets: %w", err)
		}
		raw = fetched

		batch := &domain.RawTicketBatch{
			Metadata: domain.BatchMetadata{
				ProductName:  q.ProductName,
				Platform:     string(q.Platform),
				StartDate:    q.StartDate.Format("2006-01-02"),
				EndDate:      q.EndDate.Format("2006-01-02"),
				FetchedAt:    time.Now().UTC(),
				TotalRecords: len(raw),
				Source:       "freshdesk",
				Domain:       r.Cfg.FreshdeskDomain,
			},
			Tickets: raw,
		}
		if _, err := r.Cache.Store(fingerprint, batch); err != nil {
			// Caching is best effort; the run continues on the data in hand.
			r.Logger.Printf("cache store failed fingerprint=%s: %v", fingerprint, err)
		}
	}
	stats.TicketsFetched = len(raw)

	filterCfg := ticketfilter.Config{
		ResolvedStatuses:   r.Cfg.ResolvedStatuses,
		FeedbackType:       r.Cfg.FeedbackType,
		ProductAttributes:  r.Cfg.ProductAttributes,
		PlatformAttributes: r.Cfg.PlatformAttributes,
	}
	outcome := ticketfilter.New(q, filterCfg, r.Logger).Filter(raw)
	stats.RejectionCounts = outcome.RejectionCounts
	return outcome.Accepted, stats, nil
}
