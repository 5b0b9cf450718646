package scanner

import (
	"regexp"
	"strings"
	"time"
)

// Recorder filenames look like 2024-03-15_14-30-00.mp4. The date and time
// may also be separated by a space.
var clipNamePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[_ ]\d{2}-\d{2}-\d{2}\.mp4$`)

const timestampLayout = "2006-01-02 15-04-05"

// MatchesPattern reports whether name is a recorder filename.
func MatchesPattern(name string) bool {
	return clipNamePattern.MatchString(name)
}

// ParseTimestamp extracts the recording time from a recorder filename,
// interpreting it as local wall-clock time.
func ParseTimestamp(name string) (time.Time, bool) {
	return ParseTimestampIn(name, time.Local)
}

// ParseTimestampIn is ParseTimestamp with an explicit location. Names that
// match the pattern but carry an impossible date (month 13, Feb 30) are
// rejected.
func ParseTimestampIn(name string, loc *time.Location) (time.Time, bool) {
	if !MatchesPattern(name) {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	stem := strings.TrimSuffix(name, ".mp4")
	stem = strings.Replace(stem, "_", " ", 1)

	t, err := time.ParseInLocation(timestampLayout, stem, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
