// Package timeline implements the append-only status history attached to
// every application.
//
// Entries are immutable once appended and ordered by date; the last entry's
// status always mirrors the application's current status.
package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/actor"
)

// ErrOutOfOrderTimestamp is returned when an entry is older than the last one.
var ErrOutOfOrderTimestamp = errors.New("out of order timestamp")

// Entry is a single status change.
type Entry struct {
	Status  string      `json:"status"`
	Date    time.Time   `json:"date"`
	Comment string      `json:"comment,omitempty"`
	Actor   actor.Actor `json:"actor"`
}

// Log is the ordered history of one application. The zero value is empty and
// ready to use.
type Log struct {
	entries []Entry
}

// FromEntries rebuilds a Log from persisted entries, validating their order.
func FromEntries(entries []Entry) (Log, error) {
	var l Log
	for _, e := range entries {
		if err := l.Append(e); err != nil {
			return Log{}, err
		}
	}
	return l, nil
}

// Append adds e at the end of the log. It fails with ErrOutOfOrderTimestamp
// when e.Date is before the last entry's date.
func (l *Log) Append(e Entry) error {
	if n := len(l.entries); n > 0 && e.Date.Before(l.entries[n-1].Date) {
		return fmt.Errorf("%w: %s is before %s", ErrOutOfOrderTimestamp,
			e.Date.Format(time.RFC3339Nano), l.entries[n-1].Date.Format(time.RFC3339Nano))
	}
	l.entries = append(l.entries, e)
	return nil
}

// Len returns the number of entries.
func (l Log) Len() int { return len(l.entries) }

// Last returns the most recent entry.
func (l Log) Last() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Since returns the entries appended after the first n ones.
func (l Log) Since(n int) []Entry {
	if n >= len(l.entries) {
		return nil
	}
	return append([]Entry(nil), l.entries[n:]...)
}

// Entries returns a copy of all entries.
func (l Log) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}

// History yields entries in ascending date order. The sequence can be ranged
// over any number of times.
func (l Log) History() iter.Seq[Entry] {
	entries := l.entries
	return func(yield func(Entry) bool) {
		for _, e := range entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Clone returns a Log that shares no backing storage with l.
func (l Log) Clone() Log {
	return Log{entries: l.Entries()}
}

// MarshalJSON encodes the log as an array of entries.
func (l Log) MarshalJSON() ([]byte, error) {
	if l.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.entries)
}

// UnmarshalJSON decodes an array of entries, enforcing date order.
func (l *Log) UnmarshalJSON(b []byte) error {
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}
	restored, err := FromEntries(entries)
	if err != nil {
		return err
	}
	*l = restored
	return nil
}
