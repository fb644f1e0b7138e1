package router

import (
	"regexp"
	"sync"
)

// regexCache memoizes compiled regexes keyed by pattern, avoiding a
// recompile on every condition evaluation for the `regex` operator.
type regexCache struct {
	mu    sync.RWMutex
	byPat map[string]*regexp.Regexp
}

var compiledRegexCache = &regexCache{byPat: map[string]*regexp.Regexp{}}

func (c *regexCache) get(pattern string) (*regexp.Regexp, error) {
	c.mu.RLock()
	re, ok := c.byPat[pattern]
	c.mu.RUnlock()
	if ok {
		return re, nil
	}

	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.byPat[pattern] = compiled
	c.mu.Unlock()
	return compiled, nil
}
