package configs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration wraps time.Duration so configs can state it as nanoseconds, a Go duration
// string ("500ms") or an ISO-8601 duration ("PT0.5S").
type Duration struct {
	time.Duration
}

var isoDurationPattern = regexp.MustCompile(`(?i)^([-+]?)P(?:([-+]?[0-9]+)D)?(T(?:([-+]?[0-9]+)H)?(?:([-+]?[0-9]+)M)?(?:([-+]?[0-9]+)(?:[.,]([0-9]{0,9}))?S)?)?$`)

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		d.Duration = 0
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseDuration(s)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	}

	if ns, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		d.Duration = time.Duration(ns)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return fmt.Errorf("duration %s out of range", data)
	}
	d.Duration = time.Duration(f)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// ParseDuration parses an ISO-8601 duration (PnDTnHnMn.nS) or a Go duration string.
// An empty string is a zero duration.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	trimmed := strings.TrimLeft(s, "+-")
	if len(trimmed) > 0 && (trimmed[0] == 'P' || trimmed[0] == 'p') {
		return parseISODuration(s)
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

func parseISODuration(s string) (time.Duration, error) {
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", s)
	}

	days, timePart, hours, minutes, seconds, fraction := m[2], m[3], m[4], m[5], m[6], m[7]
	if timePart != "" && hours == "" && minutes == "" && seconds == "" {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q: empty time section", s)
	}
	if days == "" && timePart == "" {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q: no components", s)
	}

	var total time.Duration
	add := func(value string, unit time.Duration) error {
		if value == "" {
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ISO-8601 duration %q: %w", s, err)
		}
		if n > math.MaxInt64/int64(unit) || n < math.MinInt64/int64(unit) {
			return fmt.Errorf("invalid ISO-8601 duration %q: out of range", s)
		}
		sum, ok := addDurations(total, time.Duration(n)*unit)
		if !ok {
			return fmt.Errorf("invalid ISO-8601 duration %q: out of range", s)
		}
		total = sum
		return nil
	}

	if err := add(days, 24*time.Hour); err != nil {
		return 0, err
	}
	if err := add(hours, time.Hour); err != nil {
		return 0, err
	}
	if err := add(minutes, time.Minute); err != nil {
		return 0, err
	}
	if err := add(seconds, time.Second); err != nil {
		return 0, err
	}

	if fraction != "" {
		ns, err := strconv.ParseInt(fraction+strings.Repeat("0", 9-len(fraction)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", s, err)
		}
		if strings.HasPrefix(seconds, "-") {
			ns = -ns
		}
		sum, ok := addDurations(total, time.Duration(ns))
		if !ok {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: out of range", s)
		}
		total = sum
	}

	if m[1] == "-" {
		if total == math.MinInt64 {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: out of range", s)
		}
		total = -total
	}
	return total, nil
}

// addDurations reports false when a+b overflows.
func addDurations(a, b time.Duration) (time.Duration, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}
