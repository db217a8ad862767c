// Package timestamp holds the optional server timestamp every staleness
// decision in the sync core pivots on.
package timestamp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Timestamp is an instant that may be absent. The zero value is absent.
type Timestamp struct {
	t     time.Time
	valid bool
}

// None returns an absent timestamp.
func None() Timestamp { return Timestamp{} }

// Of wraps t. A zero time is treated as absent.
func Of(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{t: t, valid: true}
}

// Server-side timestamps come either zoned or as zone-less local date-times.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

// Parse reads raw as a timestamp. Empty input and "null" are absent.
// Zone-less layouts are read as UTC, all-digit input as epoch milliseconds.
func Parse(raw string) (Timestamp, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "null" {
		return None(), nil
	}

	if isDigits(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return None(), fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
		}
		return Of(time.UnixMilli(ms).UTC()), nil
	}

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Of(t), nil
		}
	}

	return None(), fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(raw string) Timestamp {
	ts, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return ts
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (ts Timestamp) Valid() bool     { return ts.valid }
func (ts Timestamp) Time() time.Time { return ts.t }

// Equal reports whether both are absent or both denote the same instant.
func (ts Timestamp) Equal(other Timestamp) bool {
	if ts.valid != other.valid {
		return false
	}
	return !ts.valid || ts.t.Equal(other.t)
}

func (ts Timestamp) String() string {
	if !ts.valid {
		return ""
	}
	return ts.t.UTC().Format(time.RFC3339Nano)
}

// IsNewerOrEqual reports whether incoming may overwrite state stamped with
// current. An absent side never blocks an update; equal instants accept.
func IsNewerOrEqual(current, incoming Timestamp) bool {
	if !current.valid || !incoming.valid {
		return true
	}
	return !incoming.t.Before(current.t)
}

// Latest returns the later of a and b, preferring a present value.
func Latest(a, b Timestamp) Timestamp {
	switch {
	case !a.valid:
		return b
	case !b.valid:
		return a
	case b.t.After(a.t):
		return b
	default:
		return a
	}
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if !ts.valid {
		return []byte("null"), nil
	}
	return json.Marshal(ts.String())
}

// UnmarshalJSON is strict: unparseable input is an error. Wire decoding that
// must stay fail-open reads the raw string and calls Parse itself.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*ts = None()
		return nil
	}

	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}

	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}
