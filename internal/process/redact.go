package process

import "strings"

const (
	passwordKey    = `"password":"`
	redactedMarker = "<redacted>"
)

// redactPassword replaces the value of the first "password" string field in a
// JSON payload. Escaped quotes inside the value do not end it early. An empty
// password is left as is.
func redactPassword(payload string) string {
	start := strings.Index(payload, passwordKey)
	if start < 0 {
		return payload
	}
	valueStart := start + len(passwordKey)

	end := -1
	for i := valueStart; i < len(payload); i++ {
		switch payload[i] {
		case '\\':
			i++
		case '"':
			end = i
		}
		if end >= 0 {
			break
		}
	}
	if end == valueStart {
		return payload
	}
	if end < 0 {
		return payload[:valueStart] + redactedMarker
	}
	return payload[:valueStart] + redactedMarker + payload[end:]
}
