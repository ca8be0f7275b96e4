package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stresstest-server/services"
)

type CacheHandler struct {
	processor *services.ReadingProcessor
}

func NewCacheHandler(processor *services.ReadingProcessor) *CacheHandler {
	return &CacheHandler{
		processor: processor,
	}
}

// ProcessCache POST /api/v1/cache/process flushes cached readings now.
func (h *CacheHandler) ProcessCache(c *gin.Context) {
	stored := h.processor.ProcessCachedData(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "processed", "stored": stored})
}

// GetAllCachedData GET /api/v1/cache/data
func (h *CacheHandler) GetAllCachedData(c *gin.Context) {
	allData := h.processor.GetAllCachedData()

	result := make(map[string][]gin.H)
	totalPoints := 0

	for testID, points := range allData {
		readings := make([]gin.H, 0, len(points))
		for _, point := range points {
			readings = append(readings, gin.H{
				"device_test_id": point.Reading.DeviceTestID,
				"level":          point.Reading.Level,
				"recorded_at":    point.Reading.RecordedAt.Format(time.RFC3339),
				"cached_at":      point.CachedAt.Format(time.RFC3339),
			})
			totalPoints++
		}
		result[testID] = readings
	}

	c.JSON(http.StatusOK, gin.H{
		"status":             "success",
		"total_device_tests": len(result),
		"total_readings":     totalPoints,
		"cached_data":        result,
	})
}

// GetCacheStats GET /api/v1/cache/stats
func (h *CacheHandler) GetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"stats":  h.processor.GetCacheStats(),
	})
}
