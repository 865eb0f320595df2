package identify

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// fencedObject matches a JSON object inside a markdown code block.
	fencedObject = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	// bareObject is the greedy fallback: first '{' to last '}'.
	bareObject    = regexp.MustCompile(`(?s)\{.*\}`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// extractJSON pulls the JSON object out of a model reply and removes
// trailing commas. It returns "" when there is no object.
func extractJSON(content string) string {
	var raw string
	if m := fencedObject.FindStringSubmatch(content); len(m) > 1 {
		raw = m[1]
	} else {
		raw = bareObject.FindString(content)
	}
	if raw == "" {
		return ""
	}
	return trailingComma.ReplaceAllString(strings.TrimSpace(raw), "$1")
}

func decodeJSON(content string, v any) error {
	raw := extractJSON(content)
	if raw == "" {
		return fmt.Errorf("%w: no JSON object in reply", ErrBadResponse)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}
