// Package textclean reduces a ticket's free-text body to a single analyzable
// string by stripping markup, quoted replies, boilerplate and signatures.
package textclean

import (
	"log"
	"regexp"
	"strings"

	"insightbot/internal/domain"
)

var autoReplyPatterns = compileAll([]string{
	`this is an automated (message|response|reply)`,
	`auto(-|\s)?reply`,
	`out of (the )?office`,
	`currently (away|unavailable)`,
	`on vacation`,
	`thank you for (contacting|reaching out)`,
	`we have received your (request|message|email)`,
	`your (ticket|request) has been (received|created)`,
	`ticket (id|number|#):\s*\d+`,
	`reference (id|number):\s*\d+`,
	`do not reply to this email`,
	`this (email|message) was sent automatically`,
})

var signaturePatterns = compileAll([]string{
	`(best |kind )?regards,?`,
	`sincerely,?`,
	`thanks,?`,
	`thank you,?`,
	`cheers,?`,
	`--+`,
	`_{3,}`,
	`sent from my (iphone|ipad|android|mobile)`,
	`get outlook for (ios|android)`,
	`this email and any attachments`,
	`confidentiality notice`,
})

var systemMessagePatterns = compileAll([]string{
	`\[system\]`,
	`\[automated\]`,
	`please do not respond`,
	`generated automatically`,
	`this is a system (message|notification)`,
})

var (
	htmlTagRe     = regexp.MustCompile(`<[^>]+>`)
	httpURLRe     = regexp.MustCompile(`https?://\S+`)
	wwwURLRe      = regexp.MustCompile(`www\.\S+`)
	emailRe       = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	onWroteRe     = regexp.MustCompile(`On .+ wrote:`)
	mailHeaderRe  = regexp.MustCompile(`^(From|To|Cc|Sent|Subject):\s+`)
	forwardedRe   = regexp.MustCompile(`(?i)---+\s*(Forwarded|Original)\s+Message`)
	multiSpaceRe  = regexp.MustCompile(` {2,}`)
	multiBlankRe  = regexp.MustCompile(`\n{3,}`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	htmlEntityMap = strings.NewReplacer(
		"&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">",
		"&quot;", `"`, "&#39;", "'", "&mdash;", "—", "&ndash;", "–",
	)
)

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

type Normalizer struct {
	logger *log.Logger
}

func NewNormalizer(logger *log.Logger) *Normalizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Normalizer{logger: logger}
}

// Clean derives a CleanedTicket from an accepted raw ticket. The plain-text
// description variant is preferred; the HTML variant is reduced otherwise.
// If the body cleans to nothing, the whitespace-normalized subject carries
// forward instead; a ticket is never dropped here.
func (n *Normalizer) Clean(ticket domain.RawTicket) domain.CleanedTicket {
	body := ticket.DescriptionText
	if body == "" {
		body = ticket.Description
	}

	text := ExtractMeaningfulText(body)
	if strings.TrimSpace(text) == "" {
		text = NormalizeWhitespaceInline(ticket.Subject)
		if text != "" {
			n.logger.Printf("textclean ticket=%d body cleaned to nothing, using subject", ticket.ID)
		}
	}

	return domain.CleanedTicket{
		TicketID:     ticket.ID,
		Subject:      strings.TrimSpace(ticket.Subject),
		Text:         text,
		CreatedAt:    ticket.CreatedAt,
		Status:       ticket.Status,
		Priority:     ticket.Priority,
		Tags:         ticket.Tags,
		CustomFields: ticket.CustomFields,
	}
}

// CleanAll normalizes a batch of accepted tickets, preserving order.
func (n *Normalizer) CleanAll(tickets []domain.RawTicket) []domain.CleanedTicket {
	cleaned := make([]domain.CleanedTicket, 0, len(tickets))
	for _, ticket := range tickets {
		cleaned = append(cleaned, n.Clean(ticket))
	}
	n.logger.Printf("textclean done tickets=%d", len(cleaned))
	return cleaned
}

// ExtractMeaningfulText applies the full transform sequence. The order is
// fixed: markup, URLs, emails, quoted replies, auto-replies, signatures,
// system notices, whitespace. Malformed HTML never fails; tags that don't
// parse are simply left for the later transforms.
func ExtractMeaningfulText(text string) string {
	if text == "" {
		return ""
	}
	text = RemoveHTMLTags(text)
	text = RemoveURLs(text)
	text = RemoveEmailAddresses(text)
	text = RemoveQuotedReplies(text)
	text = RemoveAutoReplies(text)
	text = RemoveSignatures(text)
	text = RemoveSystemMessages(text)
	return NormalizeWhitespace(text)
}

func RemoveHTMLTags(text string) string {
	text = htmlTagRe.ReplaceAllString(text, " ")
	return htmlEntityMap.Replace(text)
}

func RemoveURLs(text string) string {
	text = httpURLRe.ReplaceAllString(text, "")
	return wwwURLRe.ReplaceAllString(text, "")
}

func RemoveEmailAddresses(text string) string {
	return emailRe.ReplaceAllString(text, "")
}

// RemoveQuotedReplies drops quoted and forwarded blocks: ">"-prefixed lines,
// "On ... wrote:" introductions, mail headers, and forward delimiters. A
// blank line ends a quote block.
func RemoveQuotedReplies(text string) string {
	var kept []string
	inQuoteBlock := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, ">"):
			inQuoteBlock = true
			continue
		case onWroteRe.MatchString(line):
			inQuoteBlock = true
			continue
		case mailHeaderRe.MatchString(line):
			inQuoteBlock = true
			continue
		case forwardedRe.MatchString(line):
			inQuoteBlock = true
			continue
		}
		if inQuoteBlock && trimmed == "" {
			inQuoteBlock = false
			continue
		}
		if !inQuoteBlock {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func RemoveAutoReplies(text string) string {
	return dropMatchingLines(text, autoReplyPatterns)
}

// RemoveSignatures truncates the text at the first line that looks like a
// signature opener or delimiter.
func RemoveSignatures(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		for _, re := range signaturePatterns {
			if re.MatchString(line) {
				return strings.Join(lines[:i], "\n")
			}
		}
	}
	return text
}

func RemoveSystemMessages(text string) string {
	return dropMatchingLines(text, systemMessagePatterns)
}

func dropMatchingLines(text string, patterns []*regexp.Regexp) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		matched := false
		for _, re := range patterns {
			if re.MatchString(line) {
				matched = true
				break
			}
		}
		if !matched {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// NormalizeWhitespace collapses runs of spaces, limits blank-line runs to a
// single paragraph break, strips trailing line whitespace and trims the
// result.
func NormalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\t", " ")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = multiBlankRe.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// NormalizeWhitespaceInline flattens all whitespace to single spaces, for
// one-line fields like subjects.
func NormalizeWhitespaceInline(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
