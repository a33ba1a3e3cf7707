package live

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RefSource generates correlation refs
type RefSource interface {
	NextRef() string
}

// ulidRefs hands out monotonic ULIDs, unique for the life of the process
type ulidRefs struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newULIDRefs() *ulidRefs {
	return &ulidRefs{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (r *ulidRefs) NextRef() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String()
}
