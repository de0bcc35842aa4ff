// Package sqlstore implements store.Store on database/sql for any driver
// described by a Dialect. Queries are written with '?' placeholders.
package sqlstore

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect captures the differences between SQL backends.
type Dialect struct {
	Name string
	// Rebind rewrites '?' placeholders into the driver's syntax.
	Rebind func(query string) string
	// Time encodes a timestamp for storage; encoded values must order like the times.
	Time func(t time.Time) any
}

// Postgres uses numbered placeholders and native timestamptz columns.
var Postgres = Dialect{
	Name:   "postgres",
	Rebind: numberedPlaceholders,
	Time:   func(t time.Time) any { return t.UTC() },
}

// SQLite keeps '?' placeholders and stores timestamps as unix microseconds.
var SQLite = Dialect{
	Name:   "sqlite",
	Rebind: func(q string) string { return q },
	Time:   func(t time.Time) any { return t.UTC().UnixMicro() },
}

func numberedPlaceholders(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// nullTime scans any of the encodings produced by a Dialect.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (nt *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	case time.Time:
		nt.Time, nt.Valid = v.UTC(), true
		return nil
	case int64:
		nt.Time, nt.Valid = time.UnixMicro(v).UTC(), true
		return nil
	case []byte:
		return nt.parse(string(v))
	case string:
		return nt.parse(v)
	default:
		return fmt.Errorf("sqlstore: cannot scan %T into timestamp", src)
	}
}

func (nt *nullTime) parse(s string) error {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		nt.Time, nt.Valid = time.UnixMicro(n).UTC(), true
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			nt.Time, nt.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("sqlstore: unparseable timestamp %q", s)
}

func (nt nullTime) ptr() *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

var _ driver.Valuer = jsonText(nil)

// jsonText stores JSON documents as text, which both jsonb and TEXT columns accept.
type jsonText []byte

func (j jsonText) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	return string(j), nil
}
