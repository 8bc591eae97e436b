package cache

// Stats is an immutable snapshot of cache counters. Snapshots taken from
// individual segments are combined with Add.
type Stats struct {
	HitCount       int64
	MissCount      int64
	RemoveCount    int64
	RemoveWeight   int64
	ReplaceCount   int64
	EvictionCount  int64
	EvictionWeight int64
	Usage          int64
	ActiveUsage    int64

	FullFile FullFileStats
}

// FullFileStats mirrors Stats for the subset of entries that hold a
// complete local copy of a file.
type FullFileStats struct {
	HitCount       int64
	RemoveCount    int64
	RemoveWeight   int64
	ReplaceCount   int64
	EvictionCount  int64
	EvictionWeight int64
	Usage          int64
	ActiveUsage    int64
}

// RequestCount returns HitCount + MissCount.
func (s Stats) RequestCount() int64 { return s.HitCount + s.MissCount }

// HitRate returns the fraction of lookups that hit, or 1 when there were
// no lookups.
func (s Stats) HitRate() float64 {
	req := s.RequestCount()
	if req == 0 {
		return 1.0
	}
	return float64(s.HitCount) / float64(req)
}

// Add returns the element-wise sum of two snapshots.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		HitCount:       s.HitCount + o.HitCount,
		MissCount:      s.MissCount + o.MissCount,
		RemoveCount:    s.RemoveCount + o.RemoveCount,
		RemoveWeight:   s.RemoveWeight + o.RemoveWeight,
		ReplaceCount:   s.ReplaceCount + o.ReplaceCount,
		EvictionCount:  s.EvictionCount + o.EvictionCount,
		EvictionWeight: s.EvictionWeight + o.EvictionWeight,
		Usage:          s.Usage + o.Usage,
		ActiveUsage:    s.ActiveUsage + o.ActiveUsage,
		FullFile: FullFileStats{
			HitCount:       s.FullFile.HitCount + o.FullFile.HitCount,
			RemoveCount:    s.FullFile.RemoveCount + o.FullFile.RemoveCount,
			RemoveWeight:   s.FullFile.RemoveWeight + o.FullFile.RemoveWeight,
			ReplaceCount:   s.FullFile.ReplaceCount + o.FullFile.ReplaceCount,
			EvictionCount:  s.FullFile.EvictionCount + o.FullFile.EvictionCount,
			EvictionWeight: s.FullFile.EvictionWeight + o.FullFile.EvictionWeight,
			Usage:          s.FullFile.Usage + o.FullFile.Usage,
			ActiveUsage:    s.FullFile.ActiveUsage + o.FullFile.ActiveUsage,
		},
	}
}

// statsCounter accumulates segment-local counters. It is not synchronized;
// the owning segment records under its lock. Values are classified by the
// injected predicate so that whole-file entries are tracked in a parallel
// sub-record.
type statsCounter[V any] struct {
	hitCount       int64
	missCount      int64
	removeCount    int64
	removeWeight   int64
	replaceCount   int64
	evictionCount  int64
	evictionWeight int64
	usageBytes     int64
	activeBytes    int64

	fullFile   FullFileStats
	isFullFile func(v V) bool
}

func newStatsCounter[V any](isFullFile func(v V) bool) *statsCounter[V] {
	if isFullFile == nil {
		isFullFile = func(V) bool { return false }
	}
	return &statsCounter[V]{isFullFile: isFullFile}
}

func (c *statsCounter[V]) recordHit(value V) {
	c.hitCount++
	if c.isFullFile(value) {
		c.fullFile.HitCount++
	}
}

func (c *statsCounter[V]) recordMiss() {
	c.missCount++
}

func (c *statsCounter[V]) recordRemoval(value V, weight int64) {
	c.removeCount++
	c.removeWeight += weight
	c.usageBytes -= weight
	if c.isFullFile(value) {
		c.fullFile.RemoveCount++
		c.fullFile.RemoveWeight += weight
		c.fullFile.Usage -= weight
	}
}

func (c *statsCounter[V]) recordEviction(value V, weight int64) {
	c.evictionCount++
	c.evictionWeight += weight
	c.usageBytes -= weight
	if c.isFullFile(value) {
		c.fullFile.EvictionCount++
		c.fullFile.EvictionWeight += weight
		c.fullFile.Usage -= weight
	}
}

// recordReplacement accounts an in-place value swap. When the old and new
// values classify differently, the full-file sub-record moves the old
// contribution out and the new one in, so nothing is double-counted.
func (c *statsCounter[V]) recordReplacement(oldValue, newValue V, oldWeight, newWeight int64, updateActiveUsage bool) {
	c.replaceCount++

	oldFull := c.isFullFile(oldValue)
	newFull := c.isFullFile(newValue)

	if oldFull {
		c.fullFile.ReplaceCount++
	}

	if updateActiveUsage {
		c.activeBytes += newWeight - oldWeight
	}
	c.usageBytes += newWeight - oldWeight

	switch {
	case !oldFull && newFull:
		if updateActiveUsage {
			c.fullFile.ActiveUsage += newWeight
		}
		c.fullFile.Usage += newWeight
	case oldFull && !newFull:
		if updateActiveUsage {
			c.fullFile.ActiveUsage -= oldWeight
		}
		c.fullFile.Usage -= oldWeight
	case oldFull && newFull:
		if updateActiveUsage {
			c.fullFile.ActiveUsage += newWeight - oldWeight
		}
		c.fullFile.Usage += newWeight - oldWeight
	}
}

func (c *statsCounter[V]) recordUsage(value V, weight int64, decrement bool) {
	if decrement {
		weight = -weight
	}
	c.usageBytes += weight
	if c.isFullFile(value) {
		c.fullFile.Usage += weight
	}
}

func (c *statsCounter[V]) recordActiveUsage(value V, weight int64, decrement bool) {
	if decrement {
		weight = -weight
	}
	c.activeBytes += weight
	if c.isFullFile(value) {
		c.fullFile.ActiveUsage += weight
	}
}

// resetUsage zeroes the resident-weight counters, general and
// full-file. Cumulative counters (hits, misses, evictions) are kept.
func (c *statsCounter[V]) resetUsage() {
	c.usageBytes = 0
	c.fullFile.Usage = 0
}

// resetActiveUsage zeroes the referenced-weight counters.
func (c *statsCounter[V]) resetActiveUsage() {
	c.activeBytes = 0
	c.fullFile.ActiveUsage = 0
}

func (c *statsCounter[V]) usage() int64       { return c.usageBytes }
func (c *statsCounter[V]) activeUsage() int64 { return c.activeBytes }

func (c *statsCounter[V]) snapshot() Stats {
	return Stats{
		HitCount:       c.hitCount,
		MissCount:      c.missCount,
		RemoveCount:    c.removeCount,
		RemoveWeight:   c.removeWeight,
		ReplaceCount:   c.replaceCount,
		EvictionCount:  c.evictionCount,
		EvictionWeight: c.evictionWeight,
		Usage:          c.usageBytes,
		ActiveUsage:    c.activeBytes,
		FullFile:       c.fullFile,
	}
}
