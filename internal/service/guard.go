package service

import "sync"

// flightGuard admits one holder per key at a time.
type flightGuard struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newFlightGuard() *flightGuard {
	return &flightGuard{keys: make(map[string]struct{})}
}

func (g *flightGuard) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.keys[key]; busy {
		return false
	}
	g.keys[key] = struct{}{}
	return true
}

func (g *flightGuard) release(key string) {
	g.mu.Lock()
	delete(g.keys, key)
	g.mu.Unlock()
}
