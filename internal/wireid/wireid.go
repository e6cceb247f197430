// Package wireid generates the client-chosen identifiers the STOMP
// protocol requires to be unique within a connection: subscription
// ids, receipt ids, and transaction ids.
package wireid

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscriptions hands out subscription ids from a monotonic counter,
// deliberately not a random generator — uniqueness only needs to hold
// within one connection's lifetime, and a counter makes the ids
// predictable for logging and replay tracing across reconnects.
type Subscriptions struct {
	next atomic.Uint64
}

// Next returns the next subscription id, formatted "sub-<n>".
func (s *Subscriptions) Next() string {
	n := s.next.Add(1)
	return "sub-" + strconv.FormatUint(n, 10)
}

// Receipt returns a fresh receipt id. Randomly generated (via
// google/uuid) rather than counted: receipt ids from a torn-down
// connection must never collide with ids on the connection that
// replaces it, which a process-lifetime counter can't guarantee across
// a restart but a UUID can.
func Receipt() string {
	return uuid.NewString()
}

// Transaction returns a fresh transaction id, using the same
// generation strategy as Receipt.
func Transaction() string {
	return uuid.NewString()
}
