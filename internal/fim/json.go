package fim

import (
	"encoding/base64"
	"strings"
)

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// extractJSON pulls the first balanced JSON object out of a model reply,
// tolerating markdown fences and surrounding prose.
func extractJSON(response string) string {
	return extractBalanced(response, '{', '}')
}

// extractJSONArray pulls the first balanced JSON array out of a model reply.
func extractJSONArray(response string) string {
	return extractBalanced(response, '[', ']')
}

func extractBalanced(response string, opening, closing byte) string {
	start := strings.IndexByte(response, opening)
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		ch := response[i]
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
		case opening:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}
