package policystore

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/upb/integration-gateway/models"
)

func revision(integrationID uuid.UUID, version int) *models.IntegrationPolicy {
	return &models.IntegrationPolicy{ID: uuid.New(), TerminalIntegrationID: integrationID, Version: version}
}

func TestRevisionCache_GetSet(t *testing.T) {
	cache := NewRevisionCache(10, 5*time.Minute)
	rev := revision(uuid.New(), 1)

	assert.Nil(t, cache.Get(rev.ID))

	cache.Set(rev)
	assert.Same(t, rev, cache.Get(rev.ID))

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestRevisionCache_LRUEviction(t *testing.T) {
	cache := NewRevisionCache(2, time.Hour)
	ti := uuid.New()
	a, b, c := revision(ti, 1), revision(ti, 2), revision(ti, 3)

	cache.Set(a)
	cache.Set(b)
	cache.Get(a.ID) // a is now most recently used
	cache.Set(c)

	assert.NotNil(t, cache.Get(a.ID))
	assert.Nil(t, cache.Get(b.ID))
	assert.NotNil(t, cache.Get(c.ID))
}

func TestRevisionCache_TTL(t *testing.T) {
	cache := NewRevisionCache(10, time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	rev := revision(uuid.New(), 1)
	cache.Set(rev)

	now = now.Add(2 * time.Minute)
	assert.Nil(t, cache.Get(rev.ID))
	assert.Equal(t, 0, cache.Stats().Size)

	cache.Set(rev)
	other := revision(uuid.New(), 1)
	now = now.Add(30 * time.Second)
	cache.Set(other)
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, cache.CleanupExpired())
	assert.NotNil(t, cache.Get(other.ID))
}

func TestRevisionCache_Invalidate(t *testing.T) {
	cache := NewRevisionCache(10, time.Hour)
	ti := uuid.New()
	a, b := revision(ti, 1), revision(ti, 2)
	other := revision(uuid.New(), 1)
	cache.Set(a)
	cache.Set(b)
	cache.Set(other)

	cache.Invalidate(a.ID)
	assert.Nil(t, cache.Get(a.ID))

	cache.InvalidateIntegration(ti)
	assert.Nil(t, cache.Get(b.ID))
	assert.NotNil(t, cache.Get(other.ID))

	cache.Clear()
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestRevisionCache_Concurrent(t *testing.T) {
	cache := NewRevisionCache(50, time.Hour)
	ti := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rev := revision(ti, i)
			cache.Set(rev)
			cache.Get(rev.ID)
			cache.Stats()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, cache.Stats().Size)
}

func TestRevisionCache_StartCleanupWorker(t *testing.T) {
	cache := NewRevisionCache(10, time.Millisecond)
	cache.Set(revision(uuid.New(), 1))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		cache.StartCleanupWorker(5*time.Millisecond, stop)
		close(done)
	}()

	assert.Eventually(t, func() bool { return cache.Stats().Size == 0 }, time.Second, 5*time.Millisecond)
	close(stop)
	<-done
}
