package expression

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/c360/eventrouter/pkg/cache"
)

// globalRegexCache holds compiled regular expressions for the regex
// operator. Rules reuse the same handful of patterns, so a small LRU
// covers the working set.
var globalRegexCache cache.Cache[*regexp.Regexp]

func init() {
	var err error
	globalRegexCache, err = cache.NewLRU[*regexp.Regexp](100)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize regex cache: %v", err))
	}
}

// compileRegex returns a cached compiled regex or compiles and caches
// a new one. Patterns are complexity-checked before compilation.
func compileRegex(pattern string) (*regexp.Regexp, error) {
	if re, found := globalRegexCache.Get(pattern); found {
		return re, nil
	}

	if err := validateRegexComplexity(pattern); err != nil {
		return nil, err
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern '%s': %w", pattern, err)
	}

	_, _ = globalRegexCache.Set(pattern, re)
	return re, nil
}

// validateRegexComplexity rejects patterns likely to cause excessive
// backtracking. Heuristic, not exhaustive.
func validateRegexComplexity(pattern string) error {
	if len(pattern) > 500 {
		return fmt.Errorf("regex pattern too long (max 500 chars): %d chars", len(pattern))
	}

	dangerousFragments := []string{
		`(\w+)*\w`,
		`(\w*)+`,
		`(a+)+`,
		`([a-zA-Z]+)*`,
		`(\d+)*\d`,
		`(.*)*`,
		`(.+)+`,
		`(\s+)*\s`,
	}
	for _, fragment := range dangerousFragments {
		if strings.Contains(pattern, fragment) {
			return fmt.Errorf("regex pattern contains nested quantifiers that may cause exponential backtracking")
		}
	}

	if strings.Count(pattern, "(") > 20 {
		return fmt.Errorf("regex pattern has too many groups (max 20)")
	}

	nestLevel := 0
	for _, ch := range pattern {
		switch ch {
		case '(':
			nestLevel++
			if nestLevel > 5 {
				return fmt.Errorf("regex pattern has excessive nesting depth (max 5 levels)")
			}
		case ')':
			nestLevel--
		}
	}

	return nil
}

// clearCache removes all cached patterns, for tests
func clearCache() {
	globalRegexCache.Clear()
}

// cacheSize returns the number of cached patterns, for tests
func cacheSize() int {
	return globalRegexCache.Size()
}
