package claudeweb

import (
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"
)

// LineBuffer splits an incoming byte stream into complete lines, holding
// back any trailing partial line across feeds. A line is never surfaced
// until its newline has arrived.
type LineBuffer struct {
	rem []byte
}

// Feed appends chunk to the buffer and returns every newly completed line,
// stripped of its line ending.
func (b *LineBuffer) Feed(chunk []byte) []string {
	b.rem = append(b.rem, chunk...)

	var lines []string
	for {
		idx := indexByte(b.rem, '\n')
		if idx < 0 {
			return lines
		}
		line := string(b.rem[:idx])
		b.rem = b.rem[idx+1:]
		lines = append(lines, strings.TrimSuffix(line, "\r"))
	}
}

// Flush returns whatever partial line remains after the stream ends.
func (b *LineBuffer) Flush() (string, bool) {
	if len(b.rem) == 0 {
		return "", false
	}
	line := strings.TrimSuffix(string(b.rem), "\r")
	b.rem = nil
	return line, true
}

func indexByte(data []byte, c byte) int {
	for i, b := range data {
		if b == c {
			return i
		}
	}
	return -1
}

// StreamUsage holds the token counts reported inside the event stream.
type StreamUsage struct {
	InputTokens  int
	OutputTokens int
}

// eventAccumulator folds SSE events into a single logical response. It is
// pure state plus Apply, so the machine is testable without a network.
//
// The unofficial backend may change its event shapes without notice, so a
// malformed event is logged and skipped, never fatal; the HTTP status is
// the source of truth for hard failures.
type eventAccumulator struct {
	content strings.Builder
	usage   *StreamUsage
	logger  *slog.Logger
}

func newEventAccumulator(logger *slog.Logger) *eventAccumulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &eventAccumulator{logger: logger}
}

const sseDataPrefix = "data: "

// Apply consumes one complete line from the stream. Non-data lines (event
// names, comments, keep-alive blanks) are ignored.
func (a *eventAccumulator) Apply(line string) {
	if !strings.HasPrefix(line, sseDataPrefix) {
		return
	}
	payload := strings.TrimSpace(line[len(sseDataPrefix):])
	if payload == "" || payload == "[DONE]" {
		return
	}

	if !gjson.Valid(payload) {
		a.logger.Debug("skipping malformed stream event", "payload_len", len(payload))
		return
	}

	event := gjson.Parse(payload)
	switch event.Get("type").String() {
	case "content_block_delta":
		if event.Get("delta.type").String() == "text_delta" {
			a.content.WriteString(event.Get("delta.text").String())
		}

	case "message_start":
		// Provisional counts; message_delta supersedes them.
		if usage := event.Get("message.usage"); usage.Exists() {
			a.mergeUsage(usage)
		} else if usage := event.Get("usage"); usage.Exists() {
			a.mergeUsage(usage)
		}

	case "message_delta":
		// Authoritative final counts.
		if usage := event.Get("usage"); usage.Exists() {
			a.mergeUsage(usage)
		}

	case "message_stop", "ping":
		// Keep-alive / completion markers, nothing to accumulate.

	case "error":
		a.logger.Warn("stream reported error event",
			"error_type", event.Get("error.type").String(),
			"error_message", event.Get("error.message").String(),
		)

	default:
		a.logger.Debug("ignoring unknown stream event", "type", event.Get("type").String())
	}
}

// mergeUsage overwrites whichever counters the event carries, keeping
// earlier values for fields it omits.
func (a *eventAccumulator) mergeUsage(usage gjson.Result) {
	if a.usage == nil {
		a.usage = &StreamUsage{}
	}
	if v := usage.Get("input_tokens"); v.Exists() {
		a.usage.InputTokens = int(v.Int())
	}
	if v := usage.Get("output_tokens"); v.Exists() {
		a.usage.OutputTokens = int(v.Int())
	}
}

// Result returns the accumulated text and the last captured usage, which
// may be nil when the stream never reported token counts.
func (a *eventAccumulator) Result() (string, *StreamUsage) {
	return a.content.String(), a.usage
}
