package normalizer

import (
	"strings"
	"sync"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/unicode/norm"
)

const (
	defaultCacheCapacity = 1000
	defaultEvictFraction = 0.1
)

// Options selects the normalization steps. The step order is fixed:
// special characters, whitespace, diacritics, case.
type Options struct {
	ToUpper            bool
	RemoveSpecialChars bool
	RemoveDiacritics   bool
	TrimWhitespace     bool
}

// DefaultOptions keeps diacritics, everything else on
var DefaultOptions = Options{ToUpper: true, RemoveSpecialChars: true, TrimWhitespace: true}

// ComparisonOptions builds keys that ignore case, diacritics and punctuation
var ComparisonOptions = Options{ToUpper: true, RemoveSpecialChars: true, RemoveDiacritics: true, TrimWhitespace: true}

type cacheKey struct {
	text string
	opts Options
}

// TextNormalizer does primitive text cleanup with memoized results.
// The cache is safe for concurrent use.
type TextNormalizer struct {
	cache    *lru.Cache[cacheKey, string]
	capacity int
	evictN   int
	mu       sync.Mutex
}

// NewTextNormalizer creates a normalizer whose cache holds capacity entries.
// When the cache is full the oldest evictFraction of entries is dropped at once.
func NewTextNormalizer(capacity int, evictFraction float64) *TextNormalizer {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	if evictFraction <= 0 || evictFraction > 1 {
		evictFraction = defaultEvictFraction
	}
	evictN := int(float64(capacity) * evictFraction)
	if evictN < 1 {
		evictN = 1
	}
	// lru.New only fails for a non-positive size
	cache, _ := lru.New[cacheKey, string](capacity)
	return &TextNormalizer{
		cache:    cache,
		capacity: capacity,
		evictN:   evictN,
	}
}

// Normalize cleans text according to opts. Empty input or input that
// cleans down to nothing returns "".
func (tn *TextNormalizer) Normalize(text string, opts Options) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	key := cacheKey{text: text, opts: opts}
	if v, ok := tn.cache.Get(key); ok {
		return v
	}
	out := normalize(text, opts)
	tn.store(key, out)
	return out
}

// Canonical returns the comparison key of text
func (tn *TextNormalizer) Canonical(text string) string {
	return tn.Normalize(text, ComparisonOptions)
}

// Len reports the number of memoized entries
func (tn *TextNormalizer) Len() int {
	return tn.cache.Len()
}

// Purge drops every memoized entry
func (tn *TextNormalizer) Purge() {
	tn.cache.Purge()
}

func (tn *TextNormalizer) store(key cacheKey, value string) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	if tn.cache.Len() >= tn.capacity {
		for i := 0; i < tn.evictN; i++ {
			if _, _, ok := tn.cache.RemoveOldest(); !ok {
				break
			}
		}
	}
	tn.cache.Add(key, value)
}

func normalize(text string, opts Options) string {
	s := norm.NFC.String(text)

	if opts.RemoveSpecialChars {
		s = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '-' {
				return r
			}
			return ' '
		}, s)
	}

	if opts.TrimWhitespace {
		s = strings.Join(strings.Fields(s), " ")
	}

	if opts.RemoveDiacritics {
		s = RemoveDiacritics(s)
	}

	if opts.ToUpper {
		s = ToUpper(s)
	}

	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}
