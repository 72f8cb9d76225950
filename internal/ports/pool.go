package ports

import (
	"errors"
	"fmt"
	"sync"
)

var ErrNoPorts = errors.New("no free ports")
var ErrPortInUse = errors.New("port already leased")
var ErrOutOfRange = errors.New("port outside pool range")

// Pool leases ports from [min, max). The lowest free port always wins, so a
// released port is the next one handed out if nothing below it is free.
type Pool struct {
	mu     sync.Mutex
	min    int
	max    int
	leased map[int]struct{}
}

func New(min, max int) (*Pool, error) {
	if min <= 0 || max <= min || max > 65536 {
		return nil, fmt.Errorf("invalid port range [%d, %d)", min, max)
	}
	return &Pool{
		min:    min,
		max:    max,
		leased: make(map[int]struct{}),
	}, nil
}

func (p *Pool) Acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for port := p.min; port < p.max; port++ {
		if _, taken := p.leased[port]; !taken {
			p.leased[port] = struct{}{}
			return port, nil
		}
	}
	return 0, ErrNoPorts
}

// Claim leases a specific port.
func (p *Pool) Claim(port int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if port < p.min || port >= p.max {
		return fmt.Errorf("%w: %d", ErrOutOfRange, port)
	}
	if _, taken := p.leased[port]; taken {
		return fmt.Errorf("%w: %d", ErrPortInUse, port)
	}
	p.leased[port] = struct{}{}
	return nil
}

// Release is a no-op for ports that are not leased.
func (p *Pool) Release(port int) {
	p.mu.Lock()
	delete(p.leased, port)
	p.mu.Unlock()
}

func (p *Pool) Leased(port int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.leased[port]
	return ok
}

func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leased)
}

func (p *Pool) Capacity() int { return p.max - p.min }
