package synthesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSONObject means no balanced top-level JSON object could be found in
// the model output.
var ErrNoJSONObject = errors.New("no parseable JSON object in model output")

// modelResponse is the schema the model is instructed to return.
type modelResponse struct {
	AnswerMarkdown  string          `json:"answer_markdown"`
	Citations       []modelCitation `json:"citations"`
	SupportCoverage float64         `json:"support_coverage"`
	Abstain         bool            `json:"abstain"`
	Why             string          `json:"why"`
}

type modelCitation struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URIOrPath string `json:"uri_or_path"`
	Quote     string `json:"quote"`
}

// parseModelJSON decodes the model output, first as strict JSON, then by
// extracting the first balanced JSON object from surrounding noise.
func parseModelJSON(raw string) (modelResponse, error) {
	var resp modelResponse
	if err := json.Unmarshal([]byte(raw), &resp); err == nil {
		return resp, nil
	}

	candidate, err := extractFirstJSONObject(raw)
	if err != nil {
		return modelResponse{}, err
	}
	if err := json.Unmarshal([]byte(candidate), &resp); err != nil {
		return modelResponse{}, fmt.Errorf("%w: %v", ErrNoJSONObject, err)
	}
	return resp, nil
}

// extractFirstJSONObject scans for the first balanced top-level object,
// tracking string and escape state so braces inside string literals do not
// confuse the depth count.
func extractFirstJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", ErrNoJSONObject
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unbalanced braces", ErrNoJSONObject)
}
