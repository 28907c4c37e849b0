package scanning

import (
	"strings"
)

// noTextMarker is what the transcription prompt asks for on blank images.
const noTextMarker = "NO_TEXT"

// parseTranscript strips the decoration language models add around a
// verbatim transcription.
func parseTranscript(text string) string {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	if strings.HasPrefix(text, "```") {
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	text = strings.TrimSpace(text)

	if text == noTextMarker {
		return ""
	}
	return text
}
