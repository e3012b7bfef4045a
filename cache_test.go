package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReporter struct {
	NoopReporter
	evaluations int
	hits        int
	misses      int
}

func (c *countingReporter) Evaluation(_ PerplexityResult) { c.evaluations++ }
func (c *countingReporter) CacheHit()                     { c.hits++ }
func (c *countingReporter) CacheMiss()                    { c.misses++ }

func TestAnalysisCache(t *testing.T) {
	reporter := &countingReporter{}
	cache, err := NewAnalysisCache(DefaultEvaluator, 2, reporter)
	require.NoError(t, err)

	first := cache.Analyze(sampleText)
	again := cache.Analyze(sampleText)
	assert.Same(t, first, again)
	assert.Equal(t, Analyze(sampleText).Result, first.Result)

	assert.Equal(t, 1, reporter.misses)
	assert.Equal(t, 1, reporter.hits)
	assert.Equal(t, 1, reporter.evaluations, "hits are not evaluated again")
}

func TestAnalysisCacheEviction(t *testing.T) {
	reporter := &countingReporter{}
	cache, err := NewAnalysisCache(DefaultEvaluator, 2, reporter)
	require.NoError(t, err)

	cache.Analyze("a")
	cache.Analyze("b")
	cache.Analyze("c")
	assert.Equal(t, 2, cache.Len())

	cache.Analyze("a")
	assert.Equal(t, 4, reporter.misses, "the oldest entry was evicted")
}

func TestAnalysisCacheInvalidSize(t *testing.T) {
	_, err := NewAnalysisCache(DefaultEvaluator, 0, nil)
	assert.ErrorIs(t, err, errInvalidCacheSize)
}

func TestAnalysisCacheNilReporter(t *testing.T) {
	cache, err := NewAnalysisCache(DefaultEvaluator, 4, nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() { cache.Analyze("the") })
}
