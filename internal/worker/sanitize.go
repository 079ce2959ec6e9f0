package worker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxErrorLength = 240

// credentialPattern matches tokens that must never reach a stored error
// message: anything that looks like a key, secret, or auth header value.
var credentialPattern = regexp.MustCompile(`(?i)(api[-_]?key|bearer|authorization|password|secret|token)[=:\s]*\S*`)

// Sanitize turns an arbitrary stage error into a single-line, bounded,
// credential-free message fit for storage and display to the job owner.
func Sanitize(err error) string {
	if err == nil {
		return "unknown error"
	}

	msg := strings.Join(strings.Fields(err.Error()), " ")
	msg = credentialPattern.ReplaceAllString(msg, "[redacted]")
	if len(msg) > maxErrorLength {
		cut := maxErrorLength
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	if msg == "" {
		return "unknown error"
	}
	return msg
}
