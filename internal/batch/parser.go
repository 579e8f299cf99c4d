package batch

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrUnparseable is returned when no strategy could read a JSON string array from a reply.
var ErrUnparseable = errors.New("model reply is not a JSON string array")

var (
	fencePattern         = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*\\n?(.*?)```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([\]}])`)
)

// parseStrategy reads an array from raw text or reports no match.
type parseStrategy struct {
	name  string
	parse func(raw string) ([]string, bool)
}

var strategies = []parseStrategy{
	{name: "strict", parse: parseStrict},
	{name: "fenced", parse: parseFenced},
	{name: "trailing-comma", parse: parseTrailingComma},
	{name: "bracket-scan", parse: parseBracketScan},
}

// ParseStringArray extracts an ordered list of strings from a free-form model reply.
// It never pads or truncates; callers reconcile counts.
func ParseStringArray(raw string) ([]string, error) {
	values, _, err := parseWithStrategy(raw)
	return values, err
}

func parseWithStrategy(raw string) ([]string, string, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
	if raw == "" {
		return nil, "", ErrUnparseable
	}
	for _, s := range strategies {
		if values, ok := s.parse(raw); ok {
			return values, s.name, nil
		}
	}
	return nil, "", ErrUnparseable
}

func parseStrict(raw string) ([]string, bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &elems); err != nil {
		return nil, false
	}

	values := make([]string, len(elems))
	for i, elem := range elems {
		if string(elem) == "null" {
			continue
		}
		if err := json.Unmarshal(elem, &values[i]); err != nil {
			return nil, false
		}
	}
	return values, true
}

func parseFenced(raw string) ([]string, bool) {
	match := fencePattern.FindStringSubmatch(raw)
	if match == nil {
		return nil, false
	}
	body := match[1]
	if values, ok := parseStrict(body); ok {
		return values, true
	}
	return parseStrict(stripTrailingCommas(body))
}

func parseTrailingComma(raw string) ([]string, bool) {
	cleaned := stripTrailingCommas(raw)
	if cleaned == raw {
		return nil, false
	}
	return parseStrict(cleaned)
}

func parseBracketScan(raw string) ([]string, bool) {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end <= start {
		return nil, false
	}
	body := raw[start : end+1]
	if values, ok := parseStrict(body); ok {
		return values, true
	}
	return parseStrict(stripTrailingCommas(body))
}

func stripTrailingCommas(raw string) string {
	return trailingCommaPattern.ReplaceAllString(raw, "$1")
}

// unfence returns the content of the first code fence, or the trimmed text.
func unfence(raw string) string {
	if match := fencePattern.FindStringSubmatch(raw); match != nil {
		return strings.TrimSpace(match[1])
	}
	return strings.TrimSpace(raw)
}
