package balancer

import (
	"net/http/httputil"
	"net/url"
	"sync"
)

// Backend is one quadchat process behind the proxy.
type Backend struct {
	URL   *url.URL
	proxy *httputil.ReverseProxy

	mu          sync.RWMutex
	alive       bool
	failCount   int
	connections int
}

func (b *Backend) SetAlive(alive bool) {
	b.mu.Lock()
	b.alive = alive
	if alive {
		b.failCount = 0
	}
	b.mu.Unlock()
}

func (b *Backend) IsAlive() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.alive
}

func (b *Backend) Connections() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connections
}

func (b *Backend) addConnection(delta int) {
	b.mu.Lock()
	b.connections += delta
	b.mu.Unlock()
}

// recordFailure counts a failed request and marks the backend down once
// maxFails is reached. It reports whether the backend went down.
func (b *Backend) recordFailure(maxFails int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failCount++
	if b.alive && b.failCount >= maxFails {
		b.alive = false
		return true
	}
	return false
}

func (b *Backend) resetFailCount() {
	b.mu.Lock()
	b.failCount = 0
	b.mu.Unlock()
}
