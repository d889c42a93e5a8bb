package registry

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 256

// codeLocks serialises mutations per code. Codes hashing to different
// stripes never wait on each other.
type codeLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *codeLocks) lock(code string) func() {
	m := &l.stripes[xxhash.Sum64String(code)%lockStripes]
	m.Lock()
	return m.Unlock
}
