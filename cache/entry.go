package cache

import "time"

// Entry is a cached value with its lifetime and access metadata.
type Entry struct {
	Value       any
	CreatedAt   time.Time
	TTL         time.Duration
	AccessCount int64
	LastAccess  time.Time
}

// Expired reports whether the entry has outlived its TTL at now. An entry
// is still live at exactly CreatedAt+TTL.
func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// ExpiresAt returns the last instant at which the entry is live.
func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

func (e *Entry) touch(now time.Time) any {
	e.AccessCount++
	e.LastAccess = now
	return e.Value
}
