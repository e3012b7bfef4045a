package main

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// AnalysisCache memoizes text analyses. Evaluation is a pure function of the
// text, so a cached analysis is always identical to a fresh one.
type AnalysisCache struct {
	evaluator *PerplexityEvaluator
	reporter  Reporter
	cache     *lru.Cache[string, *Analysis]
}

// NewAnalysisCache creates a cache holding at most size analyses.
func NewAnalysisCache(evaluator *PerplexityEvaluator, size int, reporter Reporter) (*AnalysisCache, error) {
	if size <= 0 {
		return nil, errInvalidCacheSize
	}
	cache, err := lru.New[string, *Analysis](size)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LRU cache: %w", err)
	}
	if reporter == nil {
		reporter = NoopReporter{}
	}
	return &AnalysisCache{evaluator: evaluator, reporter: reporter, cache: cache}, nil
}

// Analyze returns the analysis of text, computing it on a miss. The returned
// value is shared and must not be modified.
func (c *AnalysisCache) Analyze(text string) *Analysis {
	if a, ok := c.cache.Get(text); ok {
		c.reporter.CacheHit()
		return a
	}
	c.reporter.CacheMiss()
	a := c.evaluator.Analyze(text)
	c.reporter.Evaluation(a.Result)
	c.cache.Add(text, a)
	return a
}

// Len returns the number of cached analyses.
func (c *AnalysisCache) Len() int {
	return c.cache.Len()
}
