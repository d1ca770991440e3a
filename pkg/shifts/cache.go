package shifts

import (
	"encoding/binary"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Cache memoizes BuildMasks per (template set, day shape). It is safe for
// concurrent use. Callers always receive their own copy of the masks.
//
// Entries are indexed by Key and keep their inputs; a hit whose inputs differ
// from the request is treated as a miss and replaces the entry.
type Cache struct {
	mu     sync.RWMutex
	sets   map[uint64]cacheEntry
	hits   uint64
	misses uint64
}

type cacheEntry struct {
	templates []Template
	day       Day
	set       MaskSet
}

func (e cacheEntry) matches(templates []Template, day Day) bool {
	return slices.Equal(e.templates, templates) &&
		e.day.Length == day.Length &&
		slices.Equal(e.day.Starts, day.Starts) &&
		slices.Equal(e.day.Clock, day.Clock)
}

// NewCache creates an empty mask cache.
func NewCache() *Cache {
	return &Cache{sets: make(map[uint64]cacheEntry)}
}

// Masks returns the masks for templates over day, building them on a miss.
func (c *Cache) Masks(templates []Template, day Day) (MaskSet, error) {
	key := Key(templates, day)

	c.mu.RLock()
	entry, ok := c.sets[key]
	c.mu.RUnlock()
	if ok && entry.matches(templates, day) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return entry.set.Clone(), nil
	}

	set, err := BuildMasks(templates, day)
	if err != nil {
		return MaskSet{}, err
	}

	c.mu.Lock()
	c.misses++
	c.sets[key] = cacheEntry{
		templates: slices.Clone(templates),
		day: Day{
			Length: day.Length,
			Starts: slices.Clone(day.Starts),
			Clock:  slices.Clone(day.Clock),
		},
		set: set,
	}
	c.mu.Unlock()

	return set.Clone(), nil
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Len returns the number of cached day shapes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sets)
}

// Key digests a template set and day shape. Template order is significant
// because it fixes MaskSet.Names.
func Key(templates []Template, day Day) uint64 {
	d := xxhash.New()
	var buf [8]byte
	putInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = d.Write(buf[:])
	}

	putInt(int64(len(templates)))
	for _, t := range templates {
		putInt(int64(len(t.Name)))
		_, _ = d.WriteString(t.Name)
		putInt(int64(t.Start))
		putInt(int64(t.Duration))
	}
	putInt(int64(day.Length))
	putInt(int64(len(day.Starts)))
	for _, s := range day.Starts {
		putInt(int64(s))
	}
	putInt(int64(len(day.Clock)))
	for _, s := range day.Clock {
		putInt(int64(s))
	}
	return d.Sum64()
}
