package ticketfilter

import (
	"testing"
	"time"

	"insightbot/internal/domain"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse day %q: %v", s, err)
	}
	return d
}

func januaryQuery(t *testing.T, platform domain.Platform) domain.Query {
	t.Helper()
	return domain.Query{
		ProductName: "Candy Crush",
		Platform:    platform,
		StartDate:   day(t, "2024-01-01"),
		EndDate:     day(t, "2024-01-31"),
	}
}

func passingTicket(t *testing.T) domain.RawTicket {
	t.Helper()
	created, err := time.Parse(time.RFC3339, "2024-01-15T08:00:00Z")
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return domain.RawTicket{
		ID:        1,
		Subject:   "Crash report",
		Status:    5,
		Type:      "Feedback",
		CreatedAt: created,
		CustomFields: domain.CustomFields{
			"game": "Candy Crush",
			"os":   "android",
		},
	}
}

// Scenario: a resolved feedback ticket with matching product and platform
// attributes inside the date range is accepted.
func TestAcceptsMatchingTicket(t *testing.T) {
	pipe := New(januaryQuery(t, domain.PlatformAndroid), DefaultConfig(), nil)

	outcome := pipe.Filter([]domain.RawTicket{passingTicket(t)})
	if len(outcome.Accepted) != 1 {
		t.Fatalf("expected acceptance, rejections=%v", outcome.RejectionCounts)
	}
	if outcome.Rejected() != 0 {
		t.Fatalf("expected no rejections, got %v", outcome.RejectionCounts)
	}
}

// Scenario: the same ticket with no product attribute is rejected by the
// subject-match predicate even though the subject line mentions nothing
// contradictory; free text is never consulted.
func TestMissingProductAttributeRejectedBySubjectMatch(t *testing.T) {
	ticket := passingTicket(t)
	ticket.Subject = "Candy Crush is broken" // must not rescue the ticket
	ticket.CustomFields = domain.CustomFields{}
	pipe := New(januaryQuery(t, domain.PlatformAndroid), DefaultConfig(), nil)

	outcome := pipe.Filter([]domain.RawTicket{ticket})
	if len(outcome.Accepted) != 0 {
		t.Fatal("ticket without product attribute must be rejected")
	}
	if outcome.RejectionCounts[PredicateSubject] != 1 {
		t.Fatalf("rejectionCounts[%q] = %d, want 1", PredicateSubject, outcome.RejectionCounts[PredicateSubject])
	}
}

func TestEachPredicateRejects(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*domain.RawTicket)
		predicate string
	}{
		{"open status", func(tk *domain.RawTicket) { tk.Status = 2 }, PredicateStatus},
		{"wrong type no tags", func(tk *domain.RawTicket) { tk.Type = "Incident"; tk.Tags = nil }, PredicateType},
		{"before range", func(tk *domain.RawTicket) { tk.CreatedAt = tk.CreatedAt.AddDate(0, -2, 0) }, PredicateDate},
		{"zero created_at", func(tk *domain.RawTicket) { tk.CreatedAt = time.Time{} }, PredicateDate},
		{"non-matching product", func(tk *domain.RawTicket) { tk.CustomFields["game"] = "Other Game" }, PredicateSubject},
		{"empty product attribute", func(tk *domain.RawTicket) { tk.CustomFields["game"] = "" }, PredicateSubject},
		{"wrong platform", func(tk *domain.RawTicket) { tk.CustomFields["os"] = "ios" }, PredicatePlatform},
		{"absent platform attribute", func(tk *domain.RawTicket) { delete(tk.CustomFields, "os") }, PredicatePlatform},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket := passingTicket(t)
			tt.mutate(&ticket)
			pipe := New(januaryQuery(t, domain.PlatformAndroid), DefaultConfig(), nil)

			outcome := pipe.Filter([]domain.RawTicket{ticket})
			if len(outcome.Accepted) != 0 {
				t.Fatal("expected rejection")
			}
			if outcome.RejectionCounts[tt.predicate] != 1 {
				t.Fatalf("rejectionCounts = %v, want %q == 1", outcome.RejectionCounts, tt.predicate)
			}
			if outcome.Rejected() != 1 {
				t.Fatalf("short-circuit violated, counts = %v", outcome.RejectionCounts)
			}
		})
	}
}

// An empty product attribute must reject identically to an absent one, but
// through the present-and-non-matching path.
func TestProductEmptyStringVsAbsent(t *testing.T) {
	pipe := New(januaryQuery(t, domain.PlatformBoth), DefaultConfig(), nil)

	absent := passingTicket(t)
	delete(absent.CustomFields, "game")
	empty := passingTicket(t)
	empty.CustomFields["game"] = ""

	outcome := pipe.Filter([]domain.RawTicket{absent, empty})
	if outcome.RejectionCounts[PredicateSubject] != 2 {
		t.Fatalf("both variants should reject on subject match, counts = %v", outcome.RejectionCounts)
	}
}

func TestTypePredicateAcceptsTagFallback(t *testing.T) {
	ticket := passingTicket(t)
	ticket.Type = "Incident"
	ticket.Tags = []string{"urgent", "FEEDBACK"}
	pipe := New(januaryQuery(t, domain.PlatformAndroid), DefaultConfig(), nil)

	if outcome := pipe.Filter([]domain.RawTicket{ticket}); len(outcome.Accepted) != 1 {
		t.Fatalf("tag should satisfy the type predicate, counts = %v", outcome.RejectionCounts)
	}
}

func TestDateRangeInclusiveBounds(t *testing.T) {
	pipe := New(januaryQuery(t, domain.PlatformAndroid), DefaultConfig(), nil)

	onStart := passingTicket(t)
	onStart.CreatedAt = time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC)
	onEnd := passingTicket(t)
	onEnd.CreatedAt = time.Date(2024, 1, 31, 0, 0, 1, 0, time.UTC)
	after := passingTicket(t)
	after.CreatedAt = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	outcome := pipe.Filter([]domain.RawTicket{onStart, onEnd, after})
	if len(outcome.Accepted) != 2 {
		t.Fatalf("bounds are inclusive on both ends, accepted=%d counts=%v", len(outcome.Accepted), outcome.RejectionCounts)
	}
	if outcome.RejectionCounts[PredicateDate] != 1 {
		t.Fatalf("day after range must reject on date, counts=%v", outcome.RejectionCounts)
	}
}

func TestPlatformBothAutoPasses(t *testing.T) {
	ticket := passingTicket(t)
	delete(ticket.CustomFields, "os")
	pipe := New(januaryQuery(t, domain.PlatformBoth), DefaultConfig(), nil)

	if outcome := pipe.Filter([]domain.RawTicket{ticket}); len(outcome.Accepted) != 1 {
		t.Fatalf("platform predicate must auto-pass for Both, counts = %v", outcome.RejectionCounts)
	}
}

func TestPlatformIOSTokenMatching(t *testing.T) {
	query := januaryQuery(t, domain.PlatformIOS)
	pipe := New(query, DefaultConfig(), nil)

	tests := []struct {
		value string
		want  bool
	}{
		{"ios", true},
		{"iPhone", true},
		{"ipad", true},
		{"my-ios-device", false}, // token match, not substring
		{"android", false},
	}
	for _, tt := range tests {
		ticket := passingTicket(t)
		ticket.CustomFields["os"] = tt.value
		outcome := pipe.Filter([]domain.RawTicket{ticket})
		got := len(outcome.Accepted) == 1
		if got != tt.want {
			t.Errorf("iOS query against os=%q: accepted=%v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestPlatformAndroidSubstringMatching(t *testing.T) {
	ticket := passingTicket(t)
	ticket.CustomFields["os"] = "Android 14 (Pixel)"
	pipe := New(januaryQuery(t, domain.PlatformAndroid), DefaultConfig(), nil)

	if outcome := pipe.Filter([]domain.RawTicket{ticket}); len(outcome.Accepted) != 1 {
		t.Fatalf("android matches by substring, counts = %v", outcome.RejectionCounts)
	}
}

func TestPlatformFamilyAttributeFallback(t *testing.T) {
	ticket := passingTicket(t)
	delete(ticket.CustomFields, "os")
	ticket.CustomFields["platform"] = "android"
	pipe := New(januaryQuery(t, domain.PlatformAndroid), DefaultConfig(), nil)

	if outcome := pipe.Filter([]domain.RawTicket{ticket}); len(outcome.Accepted) != 1 {
		t.Fatalf("secondary platform attribute should match, counts = %v", outcome.RejectionCounts)
	}
}

// Rejection accounting: the tally sums to raw count minus accepted count, and
// acceptance equals the conjunction of all predicates evaluated
// independently.
func TestRejectionAccountingAndConjunction(t *testing.T) {
	query := januaryQuery(t, domain.PlatformAndroid)
	cfg := DefaultConfig()
	pipe := New(query, cfg, nil)

	tickets := []domain.RawTicket{passingTicket(t)}
	mutations := []func(*domain.RawTicket){
		func(tk *domain.RawTicket) { tk.Status = 2 },
		func(tk *domain.RawTicket) { tk.Status = 2; tk.Type = "Incident" }, // fails 1 and 2, counted once
		func(tk *domain.RawTicket) { tk.Type = "Question"; tk.Tags = nil },
		func(tk *domain.RawTicket) { tk.CreatedAt = tk.CreatedAt.AddDate(1, 0, 0) },
		func(tk *domain.RawTicket) { tk.CustomFields = domain.CustomFields{"os": "android"} },
		func(tk *domain.RawTicket) { tk.CustomFields["os"] = "ios" },
	}
	for i, mutate := range mutations {
		ticket := passingTicket(t)
		ticket.ID = int64(100 + i)
		mutate(&ticket)
		tickets = append(tickets, ticket)
	}

	outcome := pipe.Filter(tickets)
	if len(outcome.Accepted) != 1 {
		t.Fatalf("accepted=%d, want 1 (counts=%v)", len(outcome.Accepted), outcome.RejectionCounts)
	}
	if got, want := outcome.Rejected(), len(tickets)-len(outcome.Accepted); got != want {
		t.Fatalf("sum of rejection counts = %d, want %d", got, want)
	}

	// The double-failure ticket is attributed to status only.
	if outcome.RejectionCounts[PredicateStatus] != 2 {
		t.Fatalf("status rejections = %d, want 2 (counts=%v)", outcome.RejectionCounts[PredicateStatus], outcome.RejectionCounts)
	}

	// Conjunction check: every accepted ticket passes each predicate in
	// isolation.
	for _, accepted := range outcome.Accepted {
		if name, ok := pipe.evaluate(accepted); !ok {
			t.Fatalf("accepted ticket %d fails predicate %q on re-evaluation", accepted.ID, name)
		}
	}
}

func TestAcceptedOrderIsInputOrder(t *testing.T) {
	pipe := New(januaryQuery(t, domain.PlatformAndroid), DefaultConfig(), nil)

	first := passingTicket(t)
	first.ID = 10
	second := passingTicket(t)
	second.ID = 20
	third := passingTicket(t)
	third.ID = 30

	outcome := pipe.Filter([]domain.RawTicket{first, second, third})
	if len(outcome.Accepted) != 3 {
		t.Fatalf("accepted=%d", len(outcome.Accepted))
	}
	for i, want := range []int64{10, 20, 30} {
		if outcome.Accepted[i].ID != want {
			t.Fatalf("accepted order disturbed: %v", outcome.Accepted)
		}
	}
}
