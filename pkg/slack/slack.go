// Package slack posts messages to Slack incoming webhooks using the
// Block Kit payload format.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const httpTimeout = 20 * time.Second

// TextObject is a Block Kit text element.
type TextObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// Mrkdwn builds a markdown text object.
func Mrkdwn(text string) TextObject {
	return TextObject{Type: "mrkdwn", Text: text}
}

// PlainText builds a plain text object.
func PlainText(text string) TextObject {
	return TextObject{Type: "plain_text", Text: text, Emoji: true}
}

// Block is one Block Kit layout block.
type Block struct {
	Type     string       `json:"type"`
	Text     *TextObject  `json:"text,omitempty"`
	Fields   []TextObject `json:"fields,omitempty"`
	Elements []TextObject `json:"elements,omitempty"`
}

// Header builds a header block.
func Header(text string) Block {
	t := PlainText(text)

	return Block{Type: "header", Text: &t}
}

// Section builds a section block with markdown body text.
func Section(text string) Block {
	t := Mrkdwn(text)

	return Block{Type: "section", Text: &t}
}

// FieldSection builds a section block with a two-column field grid.
func FieldSection(fields ...TextObject) Block {
	return Block{Type: "section", Fields: fields}
}

// Context builds a context block.
func Context(elements ...TextObject) Block {
	return Block{Type: "context", Elements: elements}
}

// Divider builds a divider block.
func Divider() Block {
	return Block{Type: "divider"}
}

// Message is a webhook payload. Text doubles as the notification
// fallback when Blocks are present.
type Message struct {
	Text   string  `json:"text,omitempty"`
	Blocks []Block `json:"blocks,omitempty"`
}

// Poster delivers messages to Slack.
type Poster interface {
	Post(ctx context.Context, msg Message) error
}

// Webhook posts messages to a single incoming webhook URL.
type Webhook struct {
	log  logrus.FieldLogger
	url  string
	http *http.Client
}

var _ Poster = (*Webhook)(nil)

// NewWebhook creates a webhook poster.
func NewWebhook(log logrus.FieldLogger, url string) *Webhook {
	return &Webhook{
		log:  log.WithField("component", "slack"),
		url:  url,
		http: &http.Client{Timeout: httpTimeout},
	}
}

// Post delivers one message. Slack answers webhook posts with a plain
// "ok" body; anything else is an error.
func (w *Webhook) Post(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, w.url, bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting to webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("slack returned status %d: %s",
			resp.StatusCode, string(body))
	}

	w.log.WithField("blocks", len(msg.Blocks)).Debug("Posted Slack message")

	return nil
}
