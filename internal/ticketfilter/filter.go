// Package ticketfilter narrows a raw ticket batch to the subset relevant to
// one analysis query, keeping a per-predicate tally of rejections.
package ticketfilter

import (
	"log"
	"strings"
	"time"

	"insightbot/internal/domain"
)

// Predicate names as they appear in the rejection tally and in reports.
const (
	PredicateStatus   = "status"
	PredicateType     = "type"
	PredicateDate     = "date range"
	PredicateSubject  = "subject match"
	PredicatePlatform = "platform match"
)

// PredicateOrder is the fixed evaluation order. Acceptance is the
// conjunction of all five regardless of order; the order only determines
// which predicate a rejected ticket is attributed to.
var PredicateOrder = []string{
	PredicateStatus, PredicateType, PredicateDate, PredicateSubject, PredicatePlatform,
}

// iOS platform values are matched as exact tokens; a bare substring check
// would let "ios" match unrelated attribute values.
var iosTokens = map[string]bool{"ios": true, "iphone": true, "ipad": true}

// Config carries the run-level filter settings.
type Config struct {
	// ResolvedStatuses is the sentinel set of status codes counted as
	// resolved/closed. Resolved and Closed in Freshdesk terms.
	ResolvedStatuses []int
	// FeedbackType is the ticket type label (or tag) that marks feedback.
	FeedbackType string
	// ProductAttributes are the custom-field keys checked by the subject
	// predicate, in order.
	ProductAttributes []string
	// PlatformAttributes are the custom-field keys checked by the platform
	// predicate, in order.
	PlatformAttributes []string
}

func DefaultConfig() Config {
	return Config{
		ResolvedStatuses:   []int{4, 5},
		FeedbackType:       "Feedback",
		ProductAttributes:  []string{"game"},
		PlatformAttributes: []string{"os", "platform"},
	}
}

// Outcome is the result of one filter pass. RejectionCounts sums to the
// number of rejected tickets: a ticket failing predicate k is counted only
// against k and never evaluated further.
type Outcome struct {
	Accepted        []domain.RawTicket
	RejectionCounts map[string]int
}

func (o Outcome) Rejected() int {
	total := 0
	for _, n := range o.RejectionCounts {
		total += n
	}
	return total
}

type Pipeline struct {
	query  domain.Query
	cfg    Config
	logger *log.Logger
}

func New(query domain.Query, cfg Config, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{query: query, cfg: cfg, logger: logger}
}

// Filter evaluates every ticket against the five predicates in order,
// short-circuiting on the first failure.
func (p *Pipeline) Filter(tickets []domain.RawTicket) Outcome {
	outcome := Outcome{RejectionCounts: make(map[string]int)}

	for _, ticket := range tickets {
		if rejectedBy, ok := p.evaluate(ticket); !ok {
			outcome.RejectionCounts[rejectedBy]++
			continue
		}
		outcome.Accepted = append(outcome.Accepted, ticket)
	}

	p.logger.Printf("filter done total=%d accepted=%d status=%d type=%d date=%d subject=%d platform=%d",
		len(tickets), len(outcome.Accepted),
		outcome.RejectionCounts[PredicateStatus],
		outcome.RejectionCounts[PredicateType],
		outcome.RejectionCounts[PredicateDate],
		outcome.RejectionCounts[PredicateSubject],
		outcome.RejectionCounts[PredicatePlatform])

	return outcome
}

// evaluate returns the name of the first failing predicate, or ok=true.
func (p *Pipeline) evaluate(ticket domain.RawTicket) (string, bool) {
	if !p.matchesStatus(ticket) {
		return PredicateStatus, false
	}
	if !p.matchesType(ticket) {
		return PredicateType, false
	}
	if !p.matchesDateRange(ticket) {
		return PredicateDate, false
	}
	if !p.matchesProduct(ticket) {
		return PredicateSubject, false
	}
	if !p.matchesPlatform(ticket) {
		return PredicatePlatform, false
	}
	return "", true
}

func (p *Pipeline) matchesStatus(ticket domain.RawTicket) bool {
	for _, code := range p.cfg.ResolvedStatuses {
		if ticket.Status == code {
			return true
		}
	}
	return false
}

// matchesType accepts the configured feedback label in either the type field
// or the tag set; neither takes precedence over the other.
func (p *Pipeline) matchesType(ticket domain.RawTicket) bool {
	if ticket.Type == p.cfg.FeedbackType {
		return true
	}
	for _, tag := range ticket.Tags {
		if strings.EqualFold(tag, p.cfg.FeedbackType) {
			return true
		}
	}
	return false
}

func (p *Pipeline) matchesDateRange(ticket domain.RawTicket) bool {
	if ticket.CreatedAt.IsZero() {
		return false
	}
	created := ticket.CreatedAt.UTC()
	day := time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(p.query.StartDate) && !day.After(p.query.EndDate)
}

// matchesProduct consults only the structured product attribute. Subject and
// description text are deliberately not checked: incidental mentions of the
// product in free text must not pull a ticket into the result set.
func (p *Pipeline) matchesProduct(ticket domain.RawTicket) bool {
	want := strings.ToLower(p.query.ProductName)
	for _, key := range p.cfg.ProductAttributes {
		value, present := ticket.CustomFields.Get(key)
		if !present {
			// Absent is rejected the same as non-matching, but is a
			// different case internally.
			continue
		}
		if strings.Contains(strings.ToLower(value), want) {
			return true
		}
	}
	return false
}

// matchesPlatform auto-passes when the query covers both platforms.
// Otherwise it checks the platform-family custom attributes only, with exact
// token matching for the iOS variant set and substring matching elsewhere.
func (p *Pipeline) matchesPlatform(ticket domain.RawTicket) bool {
	if p.query.Platform == domain.PlatformBoth {
		return true
	}
	want := strings.ToLower(string(p.query.Platform))
	for _, key := range p.cfg.PlatformAttributes {
		value, present := ticket.CustomFields.Get(key)
		if !present {
			continue
		}
		value = strings.ToLower(strings.TrimSpace(value))
		if p.query.Platform == domain.PlatformIOS {
			if iosTokens[value] {
				return true
			}
			continue
		}
		if strings.Contains(value, want) {
			return true
		}
	}
	return false
}
