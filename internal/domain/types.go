package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Platform is the device platform scope of an analysis query.
type Platform string

const (
	PlatformAndroid Platform = "Android"
	PlatformIOS     Platform = "iOS"
	PlatformBoth    Platform = "Both"
)

// ParsePlatform matches the user-facing platform names case-insensitively.
func ParsePlatform(s string) (Platform, error) {
	for _, p := range []Platform{PlatformAndroid, PlatformIOS, PlatformBoth} {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid platform %q (expected Android, iOS or Both)", s)
}

// Query is one validated analysis request. It is immutable for the lifetime
// of a run; the zero value is not valid.
type Query struct {
	ProductName string
	Platform    Platform
	StartDate   time.Time // day precision, inclusive
	EndDate     time.Time // day precision, inclusive
}

func (q Query) Validate() error {
	if strings.TrimSpace(q.ProductName) == "" {
		return fmt.Errorf("product name is empty")
	}
	if q.Platform != PlatformAndroid && q.Platform != PlatformIOS && q.Platform != PlatformBoth {
		return fmt.Errorf("invalid platform %q", q.Platform)
	}
	if q.EndDate.Before(q.StartDate) {
		return fmt.Errorf("start date %s is after end date %s",
			q.StartDate.Format("2006-01-02"), q.EndDate.Format("2006-01-02"))
	}
	return nil
}

// CustomFields holds a ticket's helpdesk custom attributes. An absent key is
// distinct from a key present with an empty value; filters rely on Get's
// second return to tell them apart.
type CustomFields map[string]string

func (c CustomFields) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c[key]
	return v, ok
}

// UnmarshalJSON coerces scalar attribute values to strings and drops nulls,
// since the helpdesk sends custom fields as mixed-type JSON.
func (c *CustomFields) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		// JSON null stays a nil map so stored tickets round-trip exactly.
		*c = nil
		return nil
	}
	out := make(CustomFields, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case nil:
			// absent, not empty
		case string:
			out[k] = x
		case float64:
			out[k] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(x)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return err
			}
			out[k] = string(b)
		}
	}
	*c = out
	return nil
}

// RawTicket is the helpdesk's native ticket shape. Fields beyond the ones the
// filter and cleaner read are carried through untouched.
type RawTicket struct {
	ID              int64        `json:"id"`
	Subject         string       `json:"subject"`
	Description     string       `json:"description"`      // HTML variant
	DescriptionText string       `json:"description_text"` // plain-text variant, preferred
	Status          int          `json:"status"`
	Type            string       `json:"type"`
	Priority        int          `json:"priority"`
	Source          int          `json:"source"`
	Tags            []string     `json:"tags"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	CustomFields    CustomFields `json:"custom_fields"`
}

// BatchMetadata echoes the query a batch was fetched for. Field names match
// the cache file layout, which must stay bit-compatible across
// implementations.
type BatchMetadata struct {
	ProductName  string    `json:"game_name"`
	Platform     string    `json:"os"`
	StartDate    string    `json:"start_date"`
	EndDate      string    `json:"end_date"`
	FetchedAt    time.Time `json:"fetched_at"`
	TotalRecords int       `json:"total_records"`
	Source       string    `json:"source"`
	Domain       string    `json:"domain,omitempty"`
}

// RawTicketBatch is one fetched ticket set. It is created once per cache miss
// and never mutated afterwards, only replaced wholesale.
type RawTicketBatch struct {
	Metadata BatchMetadata `json:"metadata"`
	Tickets  []RawTicket   `json:"feedbacks"`
}

// CleanedTicket is a normalized ticket ready for classification. It is
// derived 1:1 from an accepted RawTicket and never persisted.
type CleanedTicket struct {
	TicketID     int64
	Subject      string
	Text         string
	CreatedAt    time.Time
	Status       int
	Priority     int
	Tags         []string
	CustomFields CustomFields
}

// Classification is the externally produced judgment about one ticket.
// The aggregator reads only the fields it groups and ranks by; everything
// else is carried into reports unchanged.
type Classification struct {
	TicketID           int64    `json:"ticket_id"`
	Category           string   `json:"category"`
	Subcategory        string   `json:"subcategory"`
	Sentiment          string   `json:"sentiment"`
	Intent             string   `json:"intent"`
	Confidence         float64  `json:"confidence"`
	KeyPoints          []string `json:"key_points"`
	ShortSummary       string   `json:"short_summary"`
	IsExpectedBehavior bool     `json:"is_expected_behavior"`
	FeatureTag         string   `json:"related_feature"`

	// TicketCreatedAt is stamped by the pipeline from the source ticket so
	// recent-change correlation can window on creation date.
	TicketCreatedAt time.Time `json:"ticket_created_at"`
}

// RecentChange is one dated product change used for best-effort correlation.
type RecentChange struct {
	Label string
	Date  time.Time
}
