package scoring

import (
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collator compares player names for a locale. collate.Collator is not safe
// for concurrent use, so calls are serialised.
type Collator struct {
	tag language.Tag
	mu  sync.Mutex
	c   *collate.Collator
}

// NewCollator builds a collator for a BCP 47 locale. Unknown locales fall back to English.
func NewCollator(locale string) *Collator {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.English
	}
	return &Collator{
		tag: tag,
		c:   collate.New(tag, collate.IgnoreCase),
	}
}

// Locale returns the collator's language tag.
func (c *Collator) Locale() language.Tag {
	return c.tag
}

// Compare returns -1, 0 or 1.
func (c *Collator) Compare(a, b string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.c.CompareString(a, b)
}

// Less reports whether a sorts before b.
func (c *Collator) Less(a, b string) bool {
	return c.Compare(a, b) < 0
}
