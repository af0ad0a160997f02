package app

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"insightbot/internal/domain"
)

// StartAnalysisScheduler runs the pipeline on a recurring 5-field cron
// schedule (minute hour day-of-month month day-of-week). Examples:
// "0 7 * * *" (daily 7am), "0 7 * * 1" (Mondays 7am). Scheduled runs take
// the game name from the loaded game context, cover the default date range,
// and never prompt.
func StartAnalysisScheduler(runner *Runner, location *time.Location) {
	schedule := strings.TrimSpace(runner.Cfg.AnalysisSchedule)
	if schedule == "" {
		log.Println("Scheduled analysis disabled (analysis_schedule not set)")
		return
	}
	if runner.GameCtx == nil {
		log.Println("Scheduled analysis disabled: no game context to derive the query from")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid analysis_schedule '%s': %v, scheduled analysis disabled", schedule, err)
		return
	}
	log.Printf("Analysis scheduled (cron: %s) for %s", schedule, runner.GameCtx.GameName)

	go func() {
		for {
			now := time.Now().In(location)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next scheduled analysis at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			q := scheduledQuery(runner, time.Now())
			if _, err := runner.Run(context.Background(), q, Options{Yes: true}); err != nil {
				log.Printf("Scheduled analysis failed: %v", err)
			}
		}
	}()
}

func scheduledQuery(runner *Runner, now time.Time) domain.Query {
	end := now.UTC().Truncate(24 * time.Hour)
	return domain.Query{
		ProductName: runner.GameCtx.GameName,
		Platform:    domain.PlatformBoth,
		StartDate:   end.AddDate(0, 0, -runner.Cfg.DefaultDateRangeDays),
		EndDate:     end,
	}
}
