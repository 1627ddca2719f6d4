package persona

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// DefaultEmotionTTL is how long a user's last emotion is remembered
// before the conversation is considered cold and the persona resets to
// the classifier's verdict alone.
const DefaultEmotionTTL = 30 * time.Minute

// EmotionState tracks the last persona each user was spoken to in, with
// a TTL so stale sessions age out on their own. It gives conversations
// short-term tonal continuity: a user mid-way through a heavy talk does
// not get bounced to the funny persona by one lighthearted message.
//
// State is process-local and advisory. Losing it on restart is harmless;
// classification simply starts fresh.
type EmotionState struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewEmotionState creates the cache. A non-positive ttl uses
// DefaultEmotionTTL.
func NewEmotionState(ttl time.Duration) (*EmotionState, error) {
	if ttl <= 0 {
		ttl = DefaultEmotionTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000, // ~1k active users tracked comfortably
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("persona: create emotion cache: %w", err)
	}
	return &EmotionState{cache: cache, ttl: ttl}, nil
}

// Set records the persona the user was last answered in.
func (s *EmotionState) Set(userID, personaName string) {
	s.cache.SetWithTTL(userID, personaName, 1, s.ttl)
}

// Get returns the user's last persona name and whether one is known.
func (s *EmotionState) Get(userID string) (string, bool) {
	v, ok := s.cache.Get(userID)
	if !ok {
		return "", false
	}
	name, ok := v.(string)
	return name, ok
}

// Forget drops the user's entry.
func (s *EmotionState) Forget(userID string) {
	s.cache.Del(userID)
}

// Wait blocks until pending writes are applied. Tests call this before
// reading; ristretto applies Sets asynchronously.
func (s *EmotionState) Wait() {
	s.cache.Wait()
}

// Close releases the cache's internal goroutines.
func (s *EmotionState) Close() {
	s.cache.Close()
}
