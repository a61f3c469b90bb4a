package system

import (
	"fmt"
	"strings"
	"time"
)

// Layouts accepted for ISO-8601 timestamps. Zone-less values are taken as UTC.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseDateTime parses an ISO-8601 timestamp as sent by the launcher.
func ParseDateTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 date/time: %q", value)
}
