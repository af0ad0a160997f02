package app

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"insightbot/internal/domain"
)

// Options are the command-line knobs. Set fields bypass the matching
// interactive prompt; Yes suppresses every confirmation.
type Options struct {
	Product      string
	Platform     string
	Days         int
	Yes          bool
	RefreshCache bool
}

type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewScanner(in), out: out}
}

func (p *prompter) ask(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func (p *prompter) confirm(prompt string) (bool, error) {
	for {
		answer, err := p.ask(prompt)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(p.out, "Please answer y or n.")
	}
}

// CollectQuery assembles the analysis query from flags and, where flags are
// missing, interactive prompts. The date range runs from N days back to
// today, truncated to UTC days.
func CollectQuery(opts Options, in io.Reader, out io.Writer, now time.Time, defaultDays int) (domain.Query, error) {
	p := newPrompter(in, out)

	product := opts.Product
	for strings.TrimSpace(product) == "" {
		var err error
		product, err = p.ask("Enter game name: ")
		if err != nil {
			return domain.Query{}, err
		}
		if strings.TrimSpace(product) == "" {
			fmt.Fprintln(out, "Game name cannot be empty.")
		}
	}

	platform, err := resolvePlatform(opts.Platform, p, out)
	if err != nil {
		return domain.Query{}, err
	}

	days, err := resolveDays(opts, p, out, defaultDays)
	if err != nil {
		return domain.Query{}, err
	}

	end := now.UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -days)
	q := domain.Query{
		ProductName: strings.TrimSpace(product),
		Platform:    platform,
		StartDate:   start,
		EndDate:     end,
	}
	if err := q.Validate(); err != nil {
		return domain.Query{}, err
	}

	if !opts.Yes {
		fmt.Fprintf(out, "\nGame: %s\nPlatform: %s\nPeriod: %s to %s (%d days)\n",
			q.ProductName, q.Platform, q.StartDate.Format("2006-01-02"), q.EndDate.Format("2006-01-02"), days)
		ok, err := p.confirm("Proceed? (y/n): ")
		if err != nil {
			return domain.Query{}, err
		}
		if !ok {
			return domain.Query{}, fmt.Errorf("analysis cancelled")
		}
	}
	return q, nil
}

func resolvePlatform(flagValue string, p *prompter, out io.Writer) (domain.Platform, error) {
	if flagValue != "" {
		platform, err := domain.ParsePlatform(flagValue)
		if err != nil {
			return "", err
		}
		return platform, nil
	}
	for {
		answer, err := p.ask("Enter platform (Android/iOS/Both): ")
		if err != nil {
			return "", err
		}
		platform, parseErr := domain.ParsePlatform(answer)
		if parseErr == nil {
			return platform, nil
		}
		fmt.Fprintln(out, "Platform must be Android, iOS, or Both.")
	}
}

func resolveDays(opts Options, p *prompter, out io.Writer, defaultDays int) (int, error) {
	if opts.Days > 0 {
		if opts.Days > 365 {
			return 0, fmt.Errorf("days %d out of range (1-365)", opts.Days)
		}
		return opts.Days, nil
	}
	for {
		answer, err := p.ask(fmt.Sprintf("Days back to analyze [%d]: ", defaultDays))
		if err != nil {
			return 0, err
		}
		if answer == "" {
			return defaultDays, nil
		}
		days, convErr := strconv.Atoi(answer)
		if convErr != nil || days < 1 || days > 365 {
			fmt.Fprintln(out, "Enter a number between 1 and 365.")
			continue
		}
		if days > 90 && !opts.Yes {
			ok, err := p.confirm(fmt.Sprintf("%d days is a large range and may be slow. Continue? (y/n): ", days))
			if err != nil {
				return 0, err
			}
			if !ok {
				continue
			}
		}
		return days, nil
	}
}
