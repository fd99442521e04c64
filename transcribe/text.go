package transcribe

import (
	"regexp"
	"strings"
)

// regexArtifact matches non-speech markers whisper emits, like
// [BLANK_AUDIO], [MUSIC], or (inaudible).
var regexArtifact = regexp.MustCompile(`\[[A-Z_ ]+\]|\((?i:inaudible|music|noise)\)`)

// cleanText strips engine artifacts and surrounding whitespace.
func cleanText(text string) string {
	text = regexArtifact.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
