package context

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApproximateCounterNonEmpty(t *testing.T) {
	c := NewApproximateCounter()
	assert.Equal(t, 0, c.Count(""))
	assert.Greater(t, c.Count("hello world, this is a test!"), 0)
}

func TestCachingCounterHitsAfterFirstCall(t *testing.T) {
	inner := NewApproximateCounter()
	cache := NewCachingCounter(inner, 8)

	first := cache.Count("the quick brown fox")
	second := cache.Count("the quick brown fox")
	assert.Equal(t, first, second)

	hits, misses := cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCachingCounterEvictsLRU(t *testing.T) {
	inner := NewApproximateCounter()
	cache := NewCachingCounter(inner, 2)

	cache.Count("a")
	cache.Count("b")
	cache.Count("a") // refresh a as MRU
	cache.Count("c") // evicts b, the LRU

	_, missesBefore := cache.Stats()
	cache.Count("b")
	_, missesAfter := cache.Stats()
	assert.Equal(t, missesBefore+1, missesAfter, "b should have been evicted and recounted as a miss")
}

func TestCachingCounterMessagesDelegatesUncached(t *testing.T) {
	inner := NewApproximateCounter()
	cache := NewCachingCounter(inner, 8)
	ms := []Message{{Role: "user", Content: "hello"}}
	assert.Equal(t, inner.CountMessages(ms), cache.CountMessages(ms))
}

func TestNewCounterForModelFallsBackToApproximate(t *testing.T) {
	c := NewCounterForModel("some-unknown-model-xyz")
	assert.NotNil(t, c)
	assert.IsType(t, &ApproximateCounter{}, c)
	assert.Greater(t, c.Count("hello there"), 0)
}

func TestContextWindowForPrefersLongestPrefix(t *testing.T) {
	assert.Equal(t, 128000, ContextWindowFor("gpt-4-turbo-preview"))
	assert.Equal(t, 8192, ContextWindowFor("gpt-4-unknown-variant"))
	assert.Equal(t, DefaultContextWindow, ContextWindowFor("totally-unknown-model"))
}
