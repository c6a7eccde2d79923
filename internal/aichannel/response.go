package aichannel

import (
	"encoding/json"
	"fmt"
)

// Response is one completion returned by a provider.
type Response struct {
	// Result is the completion text.
	Result string `json:"result"`

	// SessionID is the provider's message id, when it reports one.
	SessionID string `json:"session_id,omitempty"`

	// InputTokens and OutputTokens report usage when the provider does.
	InputTokens  int64 `json:"input_tokens,omitempty"`
	OutputTokens int64 `json:"output_tokens,omitempty"`

	// DurationMS is the wall time of the call.
	DurationMS int64 `json:"duration_ms,omitempty"`
}

// ExtractEmbeddedJSON returns the last JSON object an AI embedded in its
// text response, or "" when there is none. Models usually put structured
// output at the end of their prose.
func ExtractEmbeddedJSON(output string) string {
	candidates := ExtractJSONObjects(output)
	if len(candidates) > 0 {
		return candidates[len(candidates)-1]
	}
	return ""
}

// ExtractJSONObjects finds all complete, valid top-level JSON objects in
// output, in order of appearance.
func ExtractJSONObjects(output string) []string {
	var results []string

	for i := 0; i < len(output); i++ {
		if output[i] != '{' {
			continue
		}

		depth := 0
		inString := false
		escaped := false
		for j := i; j < len(output); j++ {
			ch := output[j]
			if escaped {
				escaped = false
				continue
			}
			if ch == '\\' && inString {
				escaped = true
				continue
			}
			if ch == '"' {
				inString = !inString
				continue
			}
			if inString {
				continue
			}
			if ch == '{' {
				depth++
			} else if ch == '}' {
				depth--
				if depth == 0 {
					candidate := output[i : j+1]
					var probe map[string]any
					if json.Unmarshal([]byte(candidate), &probe) == nil {
						results = append(results, candidate)
						i = j
					}
					break
				}
			}
		}
	}
	return results
}

// BuildEmbeddedJSONPrompt appends an instruction to answer with a JSON
// object of the given shape.
func BuildEmbeddedJSONPrompt(instruction string, jsonSchema string) string {
	return fmt.Sprintf(`%s

IMPORTANT: Return your response as a valid JSON object with this exact structure:
%s

Output ONLY the JSON object, no additional text or markdown formatting.`, instruction, jsonSchema)
}
