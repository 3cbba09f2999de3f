// Package runner implements the per-tab driver that watches URL routing,
// extracts captured conversation text into the graph and conversation
// store, and loads enabled scripts for the active route.
package runner

import (
	"regexp"
	"strings"
	"time"

	"memcore/internal/convstore"
)

// DOMMessage is one captured `[data-message-author-role]` element.
type DOMMessage struct {
	Role string
	Text string
}

// DOMReader abstracts reading the live conversation DOM; in the browser
// this walks `[data-message-author-role]` descendants of `<main>`, here it
// is whatever the embedding caller supplies (a real DOM bridge, or a fake
// in tests).
type DOMReader interface {
	ReadMessages() ([]DOMMessage, error)
	Title() string
}

// ExtractedConversation is the runner's output contract:
// `{id, title, url, ts, messages, text}`.
type ExtractedConversation struct {
	ID       string
	Title    string
	URL      string
	TS       time.Time
	Messages []convstore.Message
	Text     string
}

var slugNonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// ExtractConversation implements: read every message turn, join
// `[ROLE]\n<msg>\n` lines into text, and derive the conversation id via the
// same canonical-id rule the conversation store itself uses.
func ExtractConversation(reader DOMReader, url string, now time.Time) (*ExtractedConversation, error) {
	messages, err := reader.ReadMessages()
	if err != nil {
		return nil, err
	}

	msgs := make([]convstore.Message, 0, len(messages))
	var sb strings.Builder
	for _, m := range messages {
		msgs = append(msgs, convstore.Message{Role: m.Role, Text: m.Text})
		sb.WriteString("[")
		sb.WriteString(strings.ToUpper(m.Role))
		sb.WriteString("]\n")
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}

	id := convstore.CanonicalID(url, tmpSlug(url, now))
	return &ExtractedConversation{
		ID:       id,
		Title:    reader.Title(),
		URL:      url,
		TS:       now,
		Messages: msgs,
		Text:     sb.String(),
	}, nil
}

// tmpSlug builds the `tmp_<slug>` fallback id for URLs with no
// `/c/<hash>` segment.
func tmpSlug(url string, now time.Time) string {
	lower := strings.ToLower(url)
	slug := strings.Trim(slugNonAlnumRe.ReplaceAllString(lower, "-"), "-")
	if len(slug) > 48 {
		slug = slug[:48]
	}
	if slug == "" {
		slug = "conversation"
	}
	return "tmp_" + slug + "-" + now.UTC().Format("20060102150405")
}
