// Package jsonx extracts JSON payloads from LLM responses.
//
// Model output is rarely clean JSON: it arrives wrapped in prose, inside
// fenced code blocks, with trailing commas or unquoted keys. Extraction is
// a two-stage parse: strict first, then a lenient repair pass, and finally
// a structured failure with a reason code instead of an error chain the
// caller has to string-match.
package jsonx

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
)

// FailReason classifies why extraction failed
type FailReason string

const (
	FailNone      FailReason = ""
	FailNoPayload FailReason = "no_payload" // no JSON-looking span found
	FailSyntax    FailReason = "syntax"     // strict and repair parse both failed
)

// Result is the outcome of one extraction attempt
type Result struct {
	OK       bool
	Repaired bool // payload only parsed after repair
	Reason   FailReason
}

func ok(repaired bool) Result {
	return Result{OK: true, Repaired: repaired}
}

func fail(reason FailReason) Result {
	return Result{Reason: reason}
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// FencedBlocks returns the contents of all fenced code blocks, in order
func FencedBlocks(text string) []string {
	matches := fencedBlockRe.FindAllStringSubmatch(text, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		block := strings.TrimSpace(m[1])
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// ExtractObject finds the first balanced {...} span in text and decodes it
// into v.
func ExtractObject(text string, v any) Result {
	return extractSpan(text, '{', '}', v)
}

// ExtractArray finds the first balanced [...] span in text and decodes it
// into v.
func ExtractArray(text string, v any) Result {
	return extractSpan(text, '[', ']', v)
}

// Decode parses a standalone payload into v, repairing if needed
func Decode(payload string, v any) Result {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return fail(FailNoPayload)
	}
	if err := json.Unmarshal([]byte(payload), v); err == nil {
		return ok(false)
	}
	repaired := Repair(payload)
	if err := json.Unmarshal([]byte(repaired), v); err == nil {
		return ok(true)
	}
	return fail(FailSyntax)
}

func extractSpan(text string, open, closer byte, v any) Result {
	span := balancedSpan(text, open, closer)
	if span == "" {
		return fail(FailNoPayload)
	}
	return Decode(span, v)
}

// balancedSpan returns the first balanced span delimited by open/close,
// respecting string literals. Truncated spans are returned as-is so the
// repair pass can close them.
func balancedSpan(text string, open, closer byte) string {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	// Unbalanced: model output was cut off mid-payload
	return text[start:]
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	singleQuoteRe   = regexp.MustCompile(`'([^']*)'`)
)

// Repair applies best-effort fixes for the malformations models commonly
// produce: smart quotes, single-quoted strings, unquoted keys, trailing
// commas, and truncated payloads.
func Repair(payload string) string {
	s := strings.TrimSpace(payload)

	// Normalize smart quotes
	replacer := strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
	s = replacer.Replace(s)

	// Single-quoted strings -> double-quoted (outside existing strings this
	// is a heuristic, which is acceptable for a repair pass)
	if !strings.Contains(s, `"`) {
		s = singleQuoteRe.ReplaceAllString(s, `"$1"`)
	}

	s = unquotedKeyRe.ReplaceAllString(s, `$1"$2":`)
	s = trailingCommaRe.ReplaceAllString(s, `$1`)
	s = closeTruncated(s)
	return s
}

// closeTruncated appends missing closers for a payload cut off mid-stream
func closeTruncated(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if inString {
		s += `"`
	}
	// Drop a dangling comma or colon before closing
	trimmed := strings.TrimRightFunc(s, unicode.IsSpace)
	if strings.HasSuffix(trimmed, ",") || strings.HasSuffix(trimmed, ":") {
		s = trimmed[:len(trimmed)-1]
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
