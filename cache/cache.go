package cache

import (
	"sync"
	"time"

	"stresstest-server/entities"

	"github.com/google/uuid"
)

type ReadingPoint struct {
	Reading  entities.BatteryReading
	CachedAt time.Time
}

// ReadingCache buffers battery readings per device test until they are flushed.
type ReadingCache struct {
	mu          sync.RWMutex
	readings  map[string][]ReadingPoint // map[deviceTestID][]points
	threshold int                       // minimum battery change (percentage points) worth storing
}

func NewReadingCache(threshold int) *ReadingCache {
	return &ReadingCache{
		readings:  make(map[string][]ReadingPoint),
		threshold: threshold,
	}
}

// AddReading adds a new reading to the cache
func (rc *ReadingCache) AddReading(r entities.BatteryReading) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.Level = entities.ClampBattery(r.Level)
	rc.readings[r.DeviceTestID] = append(rc.readings[r.DeviceTestID], ReadingPoint{
		Reading:  r,
		CachedAt: time.Now(),
	})
}

// Drain removes and returns everything cached so far.
func (rc *ReadingCache) Drain() map[string][]ReadingPoint {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	drained := rc.readings
	rc.readings = make(map[string][]ReadingPoint)
	return drained
}

// Restore puts points back in front of anything cached since they were drained.
func (rc *ReadingCache) Restore(points map[string][]ReadingPoint) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for id, pts := range points {
		rc.readings[id] = append(append([]ReadingPoint{}, pts...), rc.readings[id]...)
	}
}

// SignificantChanges keeps, per test, the first reading, every reading whose
// level moved at least threshold points from the last kept one, and the last
// reading. A threshold of 0 keeps everything.
func (rc *ReadingCache) SignificantChanges(points map[string][]ReadingPoint) map[string][]entities.BatteryReading {
	out := make(map[string][]entities.BatteryReading, len(points))
	for id, pts := range points {
		if len(pts) == 0 {
			continue
		}
		kept := []entities.BatteryReading{pts[0].Reading}
		last := pts[0].Reading
		for _, p := range pts[1:] {
			if rc.threshold <= 0 || abs(p.Reading.Level-last.Level) >= rc.threshold {
				kept = append(kept, p.Reading)
				last = p.Reading
			}
		}
		if tail := pts[len(pts)-1].Reading; tail.ID != last.ID {
			kept = append(kept, tail)
		}
		out[id] = kept
	}
	return out
}

// GetAllCachedData returns a copy of every point currently in cache
func (rc *ReadingCache) GetAllCachedData() map[string][]ReadingPoint {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	all := make(map[string][]ReadingPoint, len(rc.readings))
	for id, points := range rc.readings {
		all[id] = make([]ReadingPoint, len(points))
		copy(all[id], points)
	}
	return all
}

// GetCacheStats returns statistics about the current cache
func (rc *ReadingCache) GetCacheStats() map[string]interface{} {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	total := 0
	for _, points := range rc.readings {
		total += len(points)
	}
	return map[string]interface{}{
		"total_device_tests": len(rc.readings),
		"total_readings":     total,
		"battery_threshold":  rc.threshold,
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
