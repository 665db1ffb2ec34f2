package tts

import (
	"context"
	"sync"
	"time"

	"github.com/tahcohcat/vocalize-web/internal/mediasession"
)

// Catalog caches the voice list of an engine. It is shared by every media
// session, so the remote catalog is fetched at most once per TTL.
type Catalog struct {
	source mediasession.VoiceCatalog
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	voices    []mediasession.Voice
	fetchedAt time.Time
}

func NewCatalog(source mediasession.VoiceCatalog, ttl time.Duration) *Catalog {
	return &Catalog{source: source, ttl: ttl, now: time.Now}
}

// ListVoices returns the cached list, refreshing it when it is older than
// the TTL. A failed refresh is returned as is; the stale list is kept for
// the next call.
func (c *Catalog) ListVoices(ctx context.Context) ([]mediasession.Voice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.voices != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.copyLocked(), nil
	}

	voices, err := c.source.ListVoices(ctx)
	if err != nil {
		return nil, err
	}
	c.voices = voices
	c.fetchedAt = c.now()
	return c.copyLocked(), nil
}

// Invalidate drops the cached list.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voices = nil
}

func (c *Catalog) copyLocked() []mediasession.Voice {
	out := make([]mediasession.Voice, len(c.voices))
	copy(out, c.voices)
	return out
}
