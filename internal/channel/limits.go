package channel

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const ipEntryTTL = 5 * time.Minute

// AdmissionLimiter rate-limits handshake attempts with two token buckets:
// one per client IP and one global, so a single flooding address cannot
// exhaust capacity and a distributed flood still hits a ceiling.
type AdmissionLimiter struct {
	mu        sync.Mutex
	perIP     map[string]*ipEntry
	ipRate    rate.Limit
	ipBurst   int
	global    *rate.Limiter
	lastPrune time.Time
}

type ipEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func NewAdmissionLimiter(ipRate float64, ipBurst int, globalRate float64, globalBurst int) *AdmissionLimiter {
	return &AdmissionLimiter{
		perIP:     make(map[string]*ipEntry),
		ipRate:    rate.Limit(ipRate),
		ipBurst:   ipBurst,
		global:    rate.NewLimiter(rate.Limit(globalRate), globalBurst),
		lastPrune: time.Now(),
	}
}

// Allow reports whether a handshake attempt from ip may proceed.
func (l *AdmissionLimiter) Allow(ip string) bool {
	if !l.global.Allow() {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastPrune) > ipEntryTTL {
		for addr, entry := range l.perIP {
			if now.Sub(entry.lastAccess) > ipEntryTTL {
				delete(l.perIP, addr)
			}
		}
		l.lastPrune = now
	}

	entry, ok := l.perIP[ip]
	if !ok {
		entry = &ipEntry{limiter: rate.NewLimiter(l.ipRate, l.ipBurst)}
		l.perIP[ip] = entry
	}
	entry.lastAccess = now

	return entry.limiter.Allow()
}
