package balancer

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"

	"github.com/hilthontt/quadchat/internal/domain"
)

// Strategy represents a load balancing strategy
type Strategy int

const (
	RoundRobin Strategy = iota
	LeastConnections
	// RoomHash pins every request for one room code to one backend, so writers
	// of a room rarely race each other across processes.
	RoomHash
	Random
)

func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "round_robin":
		return RoundRobin, nil
	case "least_connections":
		return LeastConnections, nil
	case "", "room_hash":
		return RoomHash, nil
	case "random":
		return Random, nil
	default:
		return 0, fmt.Errorf("unknown strategy: %s: supported strategies: [round_robin, least_connections, room_hash, random]", s)
	}
}

func (s Strategy) String() string {
	switch s {
	case RoundRobin:
		return "round_robin"
	case LeastConnections:
		return "least_connections"
	case RoomHash:
		return "room_hash"
	case Random:
		return "random"
	}
	return "unknown"
}

// Caller holds lb.mu for every select function.

func (lb *LoadBalancer) roundRobinSelect() *Backend {
	n := len(lb.backends)
	for i := 0; i < n; i++ {
		idx := (lb.current + i) % n
		if lb.backends[idx].IsAlive() {
			lb.current = (idx + 1) % n
			return lb.backends[idx]
		}
	}
	return nil
}

func (lb *LoadBalancer) leastConnectionsSelect() *Backend {
	var best *Backend
	least := -1

	for _, b := range lb.backends {
		if !b.IsAlive() {
			continue
		}
		if conns := b.Connections(); least == -1 || conns < least {
			least = conns
			best = b
		}
	}
	return best
}

// roomHashSelect hashes the room code of the path, or the client IP for
// requests outside a room. A dead backend hands its rooms to the next alive one.
func (lb *LoadBalancer) roomHashSelect(r *http.Request) *Backend {
	key := roomCodeFromPath(r.URL.Path)
	if key == "" {
		key = clientIP(r)
	}

	hash := fnv.New32a()
	_, _ = hash.Write([]byte(key))
	n := uint32(len(lb.backends))
	start := hash.Sum32() % n

	for i := uint32(0); i < n; i++ {
		if b := lb.backends[(start+i)%n]; b.IsAlive() {
			return b
		}
	}
	return nil
}

func (lb *LoadBalancer) randomSelect() *Backend {
	alive := make([]*Backend, 0, len(lb.backends))
	for _, b := range lb.backends {
		if b.IsAlive() {
			alive = append(alive, b)
		}
	}
	if len(alive) == 0 {
		return nil
	}
	return alive[rand.IntN(len(alive))]
}

// roomCodeFromPath returns the normalized code of /api/rooms/{code}/..., or "".
func roomCodeFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/rooms/")
	if !ok {
		return ""
	}
	raw, _, _ := strings.Cut(rest, "/")
	code, err := domain.NormalizeRoomCode(raw)
	if err != nil {
		return ""
	}
	return code
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
