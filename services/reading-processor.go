package services

import (
	"context"
	"time"

	"stresstest-server/cache"
	"stresstest-server/entities"
	"stresstest-server/logs"
	"stresstest-server/usecases"
)

// ReadingProcessor periodically flushes cached battery readings to the store.
type ReadingProcessor struct {
	cache     *cache.ReadingCache
	telemetry *usecases.TelemetryUseCase
	interval  time.Duration
}

func NewReadingProcessor(telemetry *usecases.TelemetryUseCase, threshold int, interval time.Duration) *ReadingProcessor {
	return &ReadingProcessor{
		cache:     cache.NewReadingCache(threshold),
		telemetry: telemetry,
		interval:  interval,
	}
}

// Start flushes on every tick until ctx is cancelled, then flushes once more.
// The returned channel is closed after that last flush.
func (rp *ReadingProcessor) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(rp.interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rp.ProcessCachedData(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				rp.ProcessCachedData(flushCtx)
				cancel()
				return
			}
		}
	}()
	return done
}

// ProcessCachedData writes the significant cached readings and returns how
// many were stored. On failure the drained points go back into the cache.
func (rp *ReadingProcessor) ProcessCachedData(ctx context.Context) int {
	drained := rp.cache.Drain()
	var batch []entities.BatteryReading
	for _, readings := range rp.cache.SignificantChanges(drained) {
		batch = append(batch, readings...)
	}
	if len(batch) == 0 {
		logs.Logger.Debug("no cached readings to process")
		return 0
	}
	if err := rp.telemetry.Persist(ctx, batch); err != nil {
		logs.Logger.WithError(err).Errorf("error persisting %d cached readings", len(batch))
		rp.cache.Restore(drained)
		return 0
	}
	logs.Logger.Infof("inserted %d cached readings", len(batch))
	return len(batch)
}

func (rp *ReadingProcessor) AddReading(r entities.BatteryReading) {
	rp.cache.AddReading(r)
}

func (rp *ReadingProcessor) GetAllCachedData() map[string][]cache.ReadingPoint {
	return rp.cache.GetAllCachedData()
}

func (rp *ReadingProcessor) GetCacheStats() map[string]interface{} {
	return rp.cache.GetCacheStats()
}
