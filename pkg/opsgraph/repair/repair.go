// Package repair recovers structured records from unreliable model output.
//
// Models asked to emit JSON routinely wrap it in prose or markdown fences,
// truncate trailing text after the payload, or embed literal newlines inside
// quoted values when echoing multi-line content. Repair runs a fixed chain
// of recovery strategies against the raw text, each only when the previous
// one failed, with no model re-invocation:
//
//  1. strip markdown fences and parse directly
//  2. extract the first balanced {...} or [...] block by nesting depth
//  3. escape literal control characters found inside quoted values, re-parse
//  4. pattern-match expected field names against the raw text, producing a
//     partial record and reporting failure
//
// Repair never returns an error and is fully deterministic: identical input
// yields identical output, with no I/O and no shared state.
package repair

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Pipeline is a configured repair chain.
// The zero value is usable; WithFields improves the last-resort extraction.
type Pipeline struct {
	fields []string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFields declares the field names the last-resort extraction stage
// looks for when every structural parse has failed.
func WithFields(fields ...string) Option {
	return func(p *Pipeline) {
		p.fields = append(p.fields, fields...)
	}
}

// New creates a repair pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Record recovers a JSON object from raw text.
// ok is false when only the last-resort extraction produced a (possibly
// empty) partial record.
func Record(raw string) (map[string]any, bool) {
	return New().Record(raw)
}

// Array recovers a JSON array from raw text.
// ok is false when no strategy produced an array; the result is then empty,
// never nil.
func Array(raw string) ([]any, bool) {
	return New().Array(raw)
}

// Record recovers a JSON object from raw text using the pipeline's
// configured fields for the last-resort stage.
func (p *Pipeline) Record(raw string) (map[string]any, bool) {
	if doc, ok := parseDocument(raw); ok {
		if m, isMap := doc.(map[string]any); isMap {
			return m, true
		}
	}
	return p.extractFields(raw), false
}

// Array recovers a JSON array from raw text.
func (p *Pipeline) Array(raw string) ([]any, bool) {
	if doc, ok := parseDocument(raw); ok {
		if a, isArray := doc.([]any); isArray {
			return a, true
		}
	}
	return []any{}, false
}

// parseDocument runs the structural strategies (1-3) in order.
func parseDocument(raw string) (any, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}

	// Strategy 1: strip fences, parse directly.
	cleaned := stripFences(raw)
	if doc, ok := tryParse(cleaned); ok {
		return doc, true
	}

	// Strategy 2: first balanced delimiter block. Whichever delimiter
	// opens earliest in the text wins, so an object containing arrays is
	// not mistaken for its first inner array.
	pairs := [...][2]byte{{'[', ']'}, {'{', '}'}}
	if idxObj, idxArr := strings.IndexByte(cleaned, '{'), strings.IndexByte(cleaned, '['); idxObj != -1 && (idxArr == -1 || idxObj < idxArr) {
		pairs[0], pairs[1] = pairs[1], pairs[0]
	}
	for _, pair := range pairs {
		if block, found := balancedBlock(cleaned, pair[0], pair[1]); found {
			if doc, ok := tryParse(block); ok {
				return doc, true
			}
		}
	}

	// Strategy 3: escape raw control characters inside strings.
	if doc, ok := tryParse(escapeControlChars(cleaned)); ok {
		return doc, true
	}

	return nil, false
}

// tryParse attempts a strict JSON parse.
func tryParse(s string) (any, bool) {
	var doc any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, false
	}
	return doc, true
}

var (
	openFence  = regexp.MustCompile("(?m)^```[a-zA-Z]*[ \t]*$")
	closeFence = regexp.MustCompile("(?m)^```[ \t]*$")
)

// stripFences removes leading and trailing markdown code fences.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)

	if loc := openFence.FindStringIndex(s); loc != nil && loc[0] == 0 {
		s = strings.TrimSpace(s[loc[1]:])
	}
	if loc := closeFence.FindAllStringIndex(s, -1); len(loc) > 0 {
		last := loc[len(loc)-1]
		if last[1] == len(s) {
			s = strings.TrimSpace(s[:last[0]])
		}
	}

	return s
}

// balancedBlock finds the first complete top-level block delimited by open
// and closing, tracking nesting depth and quote state. Scanning for the first
// closing delimiter instead would cut nested payloads short, so depth is
// tracked explicitly.
func balancedBlock(s string, open, closing byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		ch := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// escapeControlChars rewrites literal control characters that appear inside
// quoted string values into their escaped forms. Characters outside strings
// are left untouched.
func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false

	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			b.WriteRune(r)
			escaped = true
			continue
		}
		if r == '"' {
			inString = !inString
			b.WriteRune(r)
			continue
		}

		if inString && r < 0x20 {
			switch r {
			case '\n':
				b.WriteString(`\n`)
			case '\t':
				b.WriteString(`\t`)
			case '\r':
				b.WriteString(`\r`)
			default:
				b.WriteString(fmt.Sprintf(`\u%04x`, r))
			}
			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

// fieldPattern matches `key: value` or `"key": "value"` phrases for one
// expected field name. Values run to the end of line or a closing brace.
func fieldPattern(field string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)"?` + regexp.QuoteMeta(field) + `"?\s*[:=]\s*("([^"\n]*)"|[^\s,}\n]+)`)
}

// extractFields is the last-resort stage: match expected field names
// directly against the raw text. Unmatched fields are omitted; matched
// values are coerced to bool or number where they parse as one.
func (p *Pipeline) extractFields(raw string) map[string]any {
	record := make(map[string]any)

	for _, field := range p.fields {
		m := fieldPattern(field).FindStringSubmatch(raw)
		if m == nil {
			continue
		}

		if m[2] != "" || strings.HasPrefix(m[1], `"`) {
			record[field] = m[2]
			continue
		}
		record[field] = coerce(m[1])
	}

	return record
}

// coerce converts a bare matched token to bool or float64 when it parses
// as one, else returns it as a trimmed string.
func coerce(token string) any {
	token = strings.TrimRight(token, ",")
	switch strings.ToLower(token) {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f
	}
	return token
}
