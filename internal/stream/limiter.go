package stream

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterUsage captures the throttling state for a single client.
type LimiterUsage struct {
	ClientID string
	Tokens   float64
	Allowed  int64
	Denied   int64
	LastSeen time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	allowed  int64
	denied   int64
	lastSeen time.Time
}

// ClientLimiter enforces a token bucket per client. Each inbound control frame costs
// one token.
type ClientLimiter struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewClientLimiter allows perSecond frames with bursts of up to burst frames. A
// non-positive rate disables limiting.
func NewClientLimiter(perSecond float64, burst int, clock func() time.Time) *ClientLimiter {
	//1.- Normalise the configuration.
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &ClientLimiter{
		buckets: make(map[string]*clientBucket),
		limit:   limit,
		burst:   burst,
		now:     clock,
	}
}

// Allow charges one frame to clientID.
func (l *ClientLimiter) Allow(clientID string) bool {
	if l == nil || clientID == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bucket := l.buckets[clientID]
	if bucket == nil {
		//1.- New clients start with a full bucket.
		bucket = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[clientID] = bucket
	}
	bucket.lastSeen = now

	//2.- Charge the frame and count the outcome.
	if !bucket.limiter.AllowN(now, 1) {
		bucket.denied++
		return false
	}
	bucket.allowed++
	return true
}

// Forget removes the bucket for a disconnected client.
func (l *ClientLimiter) Forget(clientID string) {
	if l == nil || clientID == "" {
		return
	}
	l.mu.Lock()
	delete(l.buckets, clientID)
	l.mu.Unlock()
}

// Usage reports the current bucket state per client.
func (l *ClientLimiter) Usage() map[string]LimiterUsage {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buckets) == 0 {
		return nil
	}
	now := l.now()
	out := make(map[string]LimiterUsage, len(l.buckets))
	for clientID, bucket := range l.buckets {
		out[clientID] = LimiterUsage{
			ClientID: clientID,
			Tokens:   bucket.limiter.TokensAt(now),
			Allowed:  bucket.allowed,
			Denied:   bucket.denied,
			LastSeen: bucket.lastSeen,
		}
	}
	return out
}
