package model

import (
	"regexp"
	"time"
)

// TimestampParser turns wire representations of createdAt into time values.
type TimestampParser struct{}

// NewTimestampParser creates a new TimestampParser
func NewTimestampParser() *TimestampParser {
	return &TimestampParser{}
}

// Accepted string layouts, most common first.
var supportedTimestampFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
}

var timestampPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d{1,9})?(?:Z|[+-]\d{2}:?\d{2})$`),
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`),
}

// IsTimestampString reports whether s looks like a supported timestamp.
func (tp *TimestampParser) IsTimestampString(s string) bool {
	if len(s) < 19 || len(s) > 35 {
		return false
	}
	for _, pattern := range timestampPatterns {
		if pattern.MatchString(s) {
			return true
		}
	}
	return false
}

// ParseTimestamp parses s with the supported layouts.
func (tp *TimestampParser) ParseTimestamp(s string) (time.Time, error) {
	if !tp.IsTimestampString(s) {
		return time.Time{}, &TimestampParseError{Input: s}
	}
	for _, format := range supportedTimestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &TimestampParseError{Input: s}
}

// TimestampParseError represents a timestamp parsing error
type TimestampParseError struct {
	Input string
}

func (e *TimestampParseError) Error() string {
	return "cannot parse '" + e.Input + "' as timestamp"
}

// TryParseAsTimestamp accepts time.Time, *time.Time, supported strings and
// the {seconds, nanoseconds} object form used by document stores on the wire.
func (tp *TimestampParser) TryParseAsTimestamp(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v != nil {
			return *v, true
		}
	case string:
		if t, err := tp.ParseTimestamp(v); err == nil {
			return t, true
		}
	case map[string]interface{}:
		secs, ok := toFloat(v["seconds"])
		if !ok {
			return time.Time{}, false
		}
		nanos, _ := toFloat(v["nanoseconds"])
		return time.Unix(int64(secs), int64(nanos)).UTC(), true
	}
	return time.Time{}, false
}
