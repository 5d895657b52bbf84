package peer

import (
	"sync"
)

// Pool is a FIFO of peers to try, skipping any address it has already seen.
type Pool struct {
	mu   sync.Mutex
	q    Peers
	seen map[string]struct{}
}

func NewPool(cap int) *Pool {
	return &Pool{q: make(Peers, 0, cap), seen: make(map[string]struct{})}
}

// PushMany appends list in order and returns how many peers were new.
func (p *Pool) PushMany(list Peers) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	added := 0
	for _, pr := range list {
		key := pr.Addr()
		if _, ok := p.seen[key]; ok {
			continue
		}
		p.seen[key] = struct{}{}
		p.q = append(p.q, pr)
		added++
	}
	return added
}

func (p *Pool) Pop() (Peer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.q) == 0 {
		return Peer{}, false
	}
	pr := p.q[0]
	p.q = p.q[1:]
	return pr, true
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.q)
}
