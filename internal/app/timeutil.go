package app

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	minutesPerDay = 24 * 60
	dateLayout    = "2006-01-02"
)

var (
	clockPattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// TimeToMinutes converts an "HH:MM" clock string into minutes since midnight.
func TimeToMinutes(t string) (int, error) {
	if !clockPattern.MatchString(t) {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", t)
	}
	h, _ := strconv.Atoi(t[:2])
	m, _ := strconv.Atoi(t[3:])
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", t)
	}
	return h*60 + m, nil
}

// MinutesToTime formats minutes since midnight as zero-padded "HH:MM",
// wrapping at 24h.
func MinutesToTime(m int) string {
	m = ((m % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ParseDate parses a strict YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	if !datePattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

var preferredTimeLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
}

// NormalizePreferredTime converts a caller-supplied time such as "10:00 AM",
// "2 pm" or "14:00" into 24-hour "HH:MM".
func NormalizePreferredTime(s string) (string, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, ".", "")
	for _, layout := range preferredTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return MinutesToTime(t.Hour()*60 + t.Minute()), nil
		}
	}
	return "", fmt.Errorf("unrecognised time %q", s)
}
