// Package audit records access decisions. Every authorization outcome,
// granted or denied, produces one entry. The hot path writes to a bounded
// in-memory ring; durable persistence and external shipping happen
// asynchronously and are intentionally separate from application logs, which
// have different consumers and retention requirements.
package audit

import (
	"sort"
	"sync"
	"time"
)

// Action classifies an access decision.
type Action string

const (
	ActionGranted          Action = "granted"
	ActionAuthFailed       Action = "auth_failed"
	ActionAccessDenied     Action = "access_denied"
	ActionPermissionDenied Action = "permission_denied"
	ActionRateLimited      Action = "rate_limited"
	ActionQuotaDenied      Action = "quota_denied"
	ActionValidationFailed Action = "validation_failed"
)

// Granted reports whether the action represents a successful authorization.
func (a Action) Granted() bool {
	return a == ActionGranted
}

// Entry is one recorded access decision.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	Action      Action    `json:"action"`
	UserID      string    `json:"user_id,omitempty"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	Endpoint    string    `json:"endpoint"`
	Method      string    `json:"method"`
	Reason      string    `json:"reason,omitempty"`
	IPAddress   string    `json:"ip_address,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	StatusCode  int       `json:"status_code,omitempty"`
}

// principal identifies who the entry should be attributed to for anomaly
// queries: the user id when known, otherwise the source address.
func (e *Entry) principal() string {
	if e.UserID != "" {
		return "user:" + e.UserID
	}
	if e.IPAddress != "" {
		return "ip:" + e.IPAddress
	}
	return "unknown"
}

// Recorder is a bounded in-memory ring of recent access decisions. Once full,
// the oldest entries are overwritten. All methods are safe for concurrent use.
type Recorder struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// DefaultCapacity bounds the ring when no capacity is configured.
const DefaultCapacity = 1000

func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{entries: make([]Entry, capacity)}
}

// Record appends an entry, evicting the oldest once the ring is full.
func (r *Recorder) Record(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

// snapshot returns the live entries oldest first. Caller must hold r.mu.
func (r *Recorder) snapshot() []Entry {
	if !r.full {
		out := make([]Entry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}

// Recent returns up to n entries, newest first.
func (r *Recorder) Recent(n int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.snapshot()
	if n > len(all) {
		n = len(all)
	}
	out := make([]Entry, 0, n)
	for i := len(all) - 1; i >= len(all)-n; i-- {
		out = append(out, all[i])
	}
	return out
}

// FailedAttempts returns the denied entries recorded since the given instant,
// newest first.
func (r *Recorder) FailedAttempts(since time.Time) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.snapshot()
	out := make([]Entry, 0)
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if e.Action.Granted() || e.Timestamp.Before(since) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// SuspiciousActivity returns the principals (user id or source address) with
// at least threshold denied attempts since the given instant.
func (r *Recorder) SuspiciousActivity(since time.Time, threshold int) []string {
	if threshold < 1 {
		threshold = 1
	}

	counts := make(map[string]int)
	for _, e := range r.FailedAttempts(since) {
		counts[e.principal()]++
	}

	out := make([]string, 0)
	for principal, n := range counts {
		if n >= threshold {
			out = append(out, principal)
		}
	}
	sort.Strings(out)
	return out
}
