// Package userqueue tracks manually-queued tracks per user and enforces
// the per-user queue cap.
package userqueue

// Limiter keeps the flat list of user-submitted uris plus a per-user
// breakdown. A limit of 0 means unlimited. Not safe for concurrent use;
// the orchestrator serializes access.
type Limiter struct {
	limit   int
	all     []string
	perUser map[string][]string
}

// NewLimiter creates a limiter with the given per-user cap.
func NewLimiter(limit int) *Limiter {
	return &Limiter{
		limit:   limit,
		perUser: make(map[string][]string),
	}
}

// Limit returns the configured per-user cap.
func (l *Limiter) Limit() int {
	return l.limit
}

// TryReserve records a manual queue entry for the user. Returns false
// without recording when the user is at their cap.
func (l *Limiter) TryReserve(fingerprint, uri string) bool {
	if l.limit > 0 && len(l.perUser[fingerprint]) >= l.limit {
		return false
	}
	l.perUser[fingerprint] = append(l.perUser[fingerprint], uri)
	l.all = append(l.all, uri)
	return true
}

// Release removes the uri from every user's list and the flat list.
// Called when the track plays, is skipped, or is withdrawn.
func (l *Limiter) Release(uri string) {
	for fingerprint, uris := range l.perUser {
		kept := uris[:0]
		for _, u := range uris {
			if u != uri {
				kept = append(kept, u)
			}
		}
		if len(kept) == 0 {
			delete(l.perUser, fingerprint)
		} else {
			l.perUser[fingerprint] = kept
		}
	}

	kept := l.all[:0]
	for _, u := range l.all {
		if u != uri {
			kept = append(kept, u)
		}
	}
	l.all = kept
}

// Owns reports whether the user manually queued the given uri.
func (l *Limiter) Owns(fingerprint, uri string) bool {
	for _, u := range l.perUser[fingerprint] {
		if u == uri {
			return true
		}
	}
	return false
}

// CountFor returns how many tracks the user currently has queued.
func (l *Limiter) CountFor(fingerprint string) int {
	return len(l.perUser[fingerprint])
}

// All returns a copy of the flat manual-queue list, in submission order.
func (l *Limiter) All() []string {
	out := make([]string, len(l.all))
	copy(out, l.all)
	return out
}

// Reset discards all manual-queue bookkeeping.
func (l *Limiter) Reset() {
	l.all = nil
	l.perUser = make(map[string][]string)
}
