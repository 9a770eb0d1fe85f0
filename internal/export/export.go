// Package export renders conversation transcripts and their statistics.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/simonyos/roundtable/internal/orchestrator"
)

// Format is a transcript encoding.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat accepts "markdown", "md" and "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json", "":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown export format %q (want markdown or json)", s)
}

// Ext returns the file extension for f.
func (f Format) Ext() string {
	if f == FormatMarkdown {
		return ".md"
	}
	return ".json"
}

// Filename returns the default file name for a conversation export.
func Filename(conversationID string, f Format) string {
	return "conversation-" + conversationID + f.Ext()
}

// Transcript is the JSON export: the conversation with its messages.
type Transcript struct {
	orchestrator.Conversation
	Messages []orchestrator.Message `json:"messages"`
}

const isoLayout = "2006-01-02T15:04:05.000Z"

func isoTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// Markdown renders the conversation as a markdown document.
func Markdown(conv orchestrator.Conversation, msgs []orchestrator.Message) string {
	lines := []string{
		"# " + conv.Title,
		"",
		"**Topic:** " + conv.Topic + "  ",
		"**Mode:** " + string(conv.Mode) + "  ",
		"**Created:** " + isoTime(conv.CreatedAt) + "  ",
		fmt.Sprintf("**Messages:** %d", len(msgs)),
		"",
		"---",
	}

	for _, msg := range msgs {
		lines = append(lines,
			"",
			fmt.Sprintf("### %s (%s)", msg.PersonaName, msg.Model),
			"*"+isoTime(msg.CreatedAt)+"*",
			"",
			msg.Content,
			"",
			"---",
		)
	}

	return strings.Join(lines, "\n")
}

// JSON renders the conversation and its messages as indented JSON.
func JSON(conv orchestrator.Conversation, msgs []orchestrator.Message) ([]byte, error) {
	if msgs == nil {
		msgs = []orchestrator.Message{}
	}
	data, err := json.MarshalIndent(Transcript{Conversation: conv, Messages: msgs}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript: %w", err)
	}
	return data, nil
}

// Write renders the conversation in format f to w.
func Write(w io.Writer, f Format, conv orchestrator.Conversation, msgs []orchestrator.Message) error {
	var data []byte
	switch f {
	case FormatMarkdown:
		data = []byte(Markdown(conv, msgs))
	case FormatJSON:
		var err error
		if data, err = JSON(conv, msgs); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}
