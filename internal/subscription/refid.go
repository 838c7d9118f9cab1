package subscription

import (
	"strconv"
	"sync/atomic"
)

// refIDCounter is process-wide and monotonic: every Subscription created in
// this process draws from the same sequence, so a reference id is unique
// across every Host, matching the server's expectation that it be unique for
// the lifetime of the streaming session.
var refIDCounter int64

// nextReferenceID allocates a fresh reference id. It never repeats and never
// returns the zero value.
func nextReferenceID() string {
	n := atomic.AddInt64(&refIDCounter, 1)
	return strconv.FormatInt(n, 10)
}
