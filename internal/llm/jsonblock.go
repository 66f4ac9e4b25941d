package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// StripFences returns the contents of the first fenced code block in
// text, or the trimmed text itself when no fence is present. Models
// frequently wrap JSON answers in markdown fences.
func StripFences(text string) string {
	if m := fencedBlockPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// UnmarshalLoose parses a JSON object out of possibly-fenced model
// output into v. It is the single parsing contract shared by the
// intent classifier and the critique stage: either v is populated or
// an error describing the parse failure is returned.
func UnmarshalLoose(text string, v interface{}) error {
	candidate := StripFences(text)
	if candidate == "" {
		return fmt.Errorf("empty model output")
	}
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		// Models sometimes prepend prose before the object; retry from
		// the first brace.
		if idx := strings.Index(candidate, "{"); idx > 0 {
			if err2 := json.Unmarshal([]byte(candidate[idx:]), v); err2 == nil {
				return nil
			}
		}
		return fmt.Errorf("parse model JSON: %w", err)
	}
	return nil
}
