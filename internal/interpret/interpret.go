// Package interpret recovers structured records from reasoning-service
// replies that may be malformed, fenced, truncated, or plain prose.
// Recovery stages run in strict order, cheapest first, and the package
// never fails: the worst case is the caller-supplied fallback record.
package interpret

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"resonate/internal/metrics"
)

// Stage names, in attempt order.
const (
	StageDirect   = "direct"
	StageRepair   = "repair"
	StageExtract  = "extract"
	StageProse    = "prose"
	StageFallback = "fallback"
)

// Spec tells the interpreter what record shape to recover.
type Spec struct {
	// TextFields are string-valued fields that may contain unescaped
	// control characters in malformed replies.
	TextFields []string
	// PrimaryField receives the whole reply in the prose stage.
	PrimaryField string
	// Defaults are merged under the prose-stage record.
	Defaults map[string]any
}

// Result is a recovered record plus how it was recovered.
type Result struct {
	Record   map[string]any
	Stage    string
	Attempts []string
}

// Interpret recovers a record from raw reply text. It never returns an
// error; if every stage fails the fallback record is used and the raw
// text is logged for diagnosis.
func Interpret(raw string, spec Spec, fallback map[string]any, log *slog.Logger) Result {
	stripped := stripFence(raw)
	var attempts []string

	try := func(stage string, record map[string]any) *Result {
		attempts = append(attempts, stage)
		if record == nil {
			return nil
		}
		metrics.InterpretRecoveries.WithLabelValues(stage).Inc()
		return &Result{Record: record, Stage: stage, Attempts: attempts}
	}

	if r := try(StageDirect, parseObject(stripped)); r != nil {
		return *r
	}
	if r := try(StageRepair, parseObject(escapeControlChars(stripped, spec.TextFields))); r != nil {
		return *r
	}
	if r := try(StageExtract, extractFields(stripped, spec)); r != nil {
		return *r
	}
	if r := try(StageProse, wrapProse(stripped, spec)); r != nil {
		return *r
	}

	attempts = append(attempts, StageFallback)
	metrics.InterpretRecoveries.WithLabelValues(StageFallback).Inc()
	log.Warn("reply unrecoverable, using fallback record", "raw", truncate(raw, 300))
	return Result{Record: fallback, Stage: StageFallback, Attempts: attempts}
}

var fencePattern = regexp.MustCompile("(?s)^```(?:json)?\\s*\n?(.*?)\n?```\\s*$")

// stripFence removes a surrounding markdown code fence, if present.
func stripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

func parseObject(s string) map[string]any {
	if !strings.HasPrefix(strings.TrimSpace(s), "{") {
		return nil
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &record); err != nil {
		return nil
	}
	return record
}

// escapeControlChars walks the text byte-wise, tracking string
// boundaries and escapes, and replaces literal newline, carriage
// return, and tab characters inside string values with their JSON
// escape sequences. Bytes outside strings are passed through. Scanning
// bytes is safe for ASCII delimiters; UTF-8 continuation bytes never
// collide with them.
func escapeControlChars(s string, textFields []string) string {
	if len(textFields) == 0 {
		return s
	}
	var (
		out      strings.Builder
		inString bool
		escape   bool
	)
	out.Grow(len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		if escape {
			escape = false
			out.WriteByte(b)
			continue
		}
		if inString {
			switch b {
			case '\\':
				escape = true
				out.WriteByte(b)
			case '"':
				inString = false
				out.WriteByte(b)
			case '\n':
				out.WriteString(`\n`)
			case '\r':
				out.WriteString(`\r`)
			case '\t':
				out.WriteString(`\t`)
			default:
				out.WriteByte(b)
			}
			continue
		}
		if b == '"' {
			inString = true
		}
		out.WriteByte(b)
	}
	return out.String()
}

// extractFields pulls known fields by name with a regex, ignoring the
// surrounding structure entirely.
func extractFields(s string, spec Spec) map[string]any {
	record := make(map[string]any)
	names := spec.TextFields
	if spec.PrimaryField != "" && !contains(names, spec.PrimaryField) {
		names = append(append([]string{}, names...), spec.PrimaryField)
	}
	for _, name := range names {
		pattern := regexp.MustCompile(`"` + regexp.QuoteMeta(name) + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
		if m := pattern.FindStringSubmatch(s); m != nil {
			record[name] = unescape(m[1])
		}
	}
	if len(record) == 0 {
		return nil
	}
	for k, v := range spec.Defaults {
		if _, ok := record[k]; !ok {
			record[k] = v
		}
	}
	return record
}

// wrapProse treats the whole reply as the primary field when the
// service answered in prose instead of a structured record.
func wrapProse(s string, spec Spec) map[string]any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || strings.HasPrefix(trimmed, "{") || spec.PrimaryField == "" {
		return nil
	}
	record := map[string]any{spec.PrimaryField: trimmed}
	for k, v := range spec.Defaults {
		if _, ok := record[k]; !ok {
			record[k] = v
		}
	}
	return record
}

func unescape(s string) string {
	var decoded string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &decoded); err != nil {
		return s
	}
	return decoded
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
