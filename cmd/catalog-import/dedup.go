package main

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// dedup tracks ASINs already seen across all feed files. The Bloom filter
// answers most first sightings without touching the exact set; positives
// are confirmed against it, so results are exact.
type dedup struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	seen   map[string]struct{}

	falsePositives int
}

func newDedup(expected uint, fpr float64) *dedup {
	return &dedup{
		filter: bloom.NewWithEstimates(expected, fpr),
		seen:   make(map[string]struct{}, expected),
	}
}

// First reports whether asin is seen for the first time and records it.
func (d *dedup) First(asin string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.filter.TestAndAddString(asin) {
		d.seen[asin] = struct{}{}
		return true
	}
	if _, ok := d.seen[asin]; ok {
		return false
	}
	d.falsePositives++
	d.seen[asin] = struct{}{}
	return true
}

// FalsePositives returns how many Bloom positives turned out to be new.
func (d *dedup) FalsePositives() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.falsePositives
}
