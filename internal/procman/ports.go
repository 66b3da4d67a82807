package procman

import (
	"fmt"
	"net"
	"sync"
)

// PortAllocator hands out worker ports from a configured range.
// A port is probed with a listen before it is handed out, since anything on
// the host may already be using it.
type PortAllocator struct {
	mu    sync.Mutex
	base  int
	limit int
	inUse map[int]bool
}

// NewPortAllocator creates an allocator for [base, base+count)
func NewPortAllocator(base, count int) *PortAllocator {
	return &PortAllocator{
		base:  base,
		limit: base + count,
		inUse: make(map[int]bool),
	}
}

// Allocate reserves and returns a free port
func (a *PortAllocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for port := a.base; port < a.limit; port++ {
		if a.inUse[port] {
			continue
		}
		if !portFree(port) {
			continue
		}
		a.inUse[port] = true
		return port, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", a.base, a.limit-1)
}

// Release returns a port to the pool
func (a *PortAllocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, port)
}

func portFree(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}
