package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no JSON object can be recovered from a response.
var ErrNoJSON = errors.New("no valid JSON object in model output")

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ExtractJSON pulls a JSON object out of model output that may be wrapped in
// prose or a code fence.
func ExtractJSON(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if json.Valid([]byte(text)) && strings.HasPrefix(text, "{") {
		return json.RawMessage(text), nil
	}
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		inner := strings.TrimSpace(m[1])
		if json.Valid([]byte(inner)) {
			return json.RawMessage(inner), nil
		}
	}
	if obj, ok := firstObject(text); ok {
		return json.RawMessage(obj), nil
	}
	return nil, ErrNoJSON
}

// firstObject scans for the first balanced {...} span that is valid JSON.
// Braces inside string literals are skipped.
func firstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				obj := text[start : i+1]
				if json.Valid([]byte(obj)) {
					return obj, true
				}
				return "", false
			}
		}
	}
	return "", false
}

// ParseError carries the raw output that could not be decoded.
type ParseError struct {
	Raw     string
	Missing []string
	Err     error
}

func (e *ParseError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("model output missing fields %v", e.Missing)
	}
	return fmt.Sprintf("parse model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Decode extracts JSON from text into v and checks that every required
// top-level field is present.
func Decode(text string, v any, required ...string) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return &ParseError{Raw: text, Err: err}
	}
	if len(required) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return &ParseError{Raw: text, Err: err}
		}
		var missing []string
		for _, f := range required {
			if _, ok := fields[f]; !ok {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			return &ParseError{Raw: text, Missing: missing, Err: ErrNoJSON}
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &ParseError{Raw: text, Err: err}
	}
	return nil
}

const strictSuffix = "\n\nYour previous reply could not be parsed. Respond with exactly one JSON object and nothing else: no prose, no code fences."

// CompleteJSON runs p and decodes the reply into v. When the reply cannot be
// decoded it retries once with a stricter instruction.
func CompleteJSON(ctx context.Context, c Client, p Prompt, v any, required ...string) error {
	p.JSON = true
	out, err := c.Complete(ctx, p)
	if err != nil {
		return err
	}
	if err := Decode(out, v, required...); err == nil {
		return nil
	}
	strict := p
	strict.User = p.User + strictSuffix
	zero := 0.0
	strict.Temperature = &zero
	out, err = c.Complete(ctx, strict)
	if err != nil {
		return err
	}
	return Decode(out, v, required...)
}
