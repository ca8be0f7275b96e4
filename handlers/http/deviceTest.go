package httpHandler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stresstest-server/entities"
	"stresstest-server/logs"
	"stresstest-server/usecases"
)

// Notifier pushes messages to a connected device under test.
type Notifier interface {
	IsConnected(id string) bool
	SendToDevice(id string, payload []byte) error
}

type DeviceTestHandler struct {
	tests     *usecases.DeviceTestUseCase
	telemetry *usecases.TelemetryUseCase
	notifier  Notifier
}

func NewDeviceTestHandler(tests *usecases.DeviceTestUseCase, telemetry *usecases.TelemetryUseCase, notifier Notifier) *DeviceTestHandler {
	return &DeviceTestHandler{tests: tests, telemetry: telemetry, notifier: notifier}
}

// CreateDeviceTest handles POST /api/v1/device-tests
func (h *DeviceTestHandler) CreateDeviceTest(c *gin.Context) {
	in := entities.NewInput()
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	test, err := h.tests.CreateDeviceTest(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Device test created successfully",
		"data":    test,
	})
}

// GetDeviceTest handles GET /api/v1/device-tests/:id
func (h *DeviceTestHandler) GetDeviceTest(c *gin.Context) {
	test, err := h.tests.GetDeviceTest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": test})
}

// ListDeviceTests handles GET /api/v1/device-tests?search=&status=&version=
func (h *DeviceTestHandler) ListDeviceTests(c *gin.Context) {
	var criteria usecases.FilterCriteria
	if err := c.ShouldBindQuery(&criteria); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query", "details": err.Error()})
		return
	}

	tests, err := h.tests.ListDeviceTests(c.Request.Context(), criteria)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  tests,
		"count": len(tests),
	})
}

// UpdateDeviceTest handles PUT /api/v1/device-tests/:id. The body replaces
// every editable field.
func (h *DeviceTestHandler) UpdateDeviceTest(c *gin.Context) {
	var in entities.DeviceTestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	test, err := h.tests.EditDeviceTest(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Device test updated successfully",
		"data":    test,
	})
}

// DeleteDeviceTest handles DELETE /api/v1/device-tests/:id
func (h *DeviceTestHandler) DeleteDeviceTest(c *gin.Context) {
	if err := h.tests.DeleteDeviceTest(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Device test deleted successfully"})
}

// StartDeviceTest handles POST /api/v1/device-tests/:id/start
func (h *DeviceTestHandler) StartDeviceTest(c *gin.Context) {
	h.transition(c, h.tests.StartDeviceTest)
}

// CompleteDeviceTest handles POST /api/v1/device-tests/:id/complete
func (h *DeviceTestHandler) CompleteDeviceTest(c *gin.Context) {
	h.transition(c, h.tests.CompleteDeviceTest)
}

// FailDeviceTest handles POST /api/v1/device-tests/:id/fail
func (h *DeviceTestHandler) FailDeviceTest(c *gin.Context) {
	h.transition(c, h.tests.FailDeviceTest)
}

func (h *DeviceTestHandler) transition(c *gin.Context, fn func(ctx context.Context, id string) (*entities.DeviceTest, error)) {
	test, err := fn(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifyStatus(test)
	c.JSON(http.StatusOK, gin.H{"data": test})
}

// notifyStatus tells a connected device its test changed state. Devices
// that are offline pick the status up from the API later.
func (h *DeviceTestHandler) notifyStatus(test *entities.DeviceTest) {
	if h.notifier == nil || !h.notifier.IsConnected(test.ID) {
		return
	}
	b, _ := json.Marshal(map[string]interface{}{
		"type":      "status",
		"status":    test.Status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err := h.notifier.SendToDevice(test.ID, b); err != nil {
		logs.Logger.Warnf("status push to %s failed: %v", test.ID, err)
	}
}

// GetStats handles GET /api/v1/device-tests/stats
func (h *DeviceTestHandler) GetStats(c *gin.Context) {
	stats, err := h.tests.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// GetVersions handles GET /api/v1/versions
func (h *DeviceTestHandler) GetVersions(c *gin.Context) {
	versions := h.tests.Versions()
	c.JSON(http.StatusOK, gin.H{
		"data":  versions,
		"count": len(versions),
	})
}

// GetReadings handles GET /api/v1/device-tests/:id/readings
func (h *DeviceTestHandler) GetReadings(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.tests.GetDeviceTest(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	readings, err := h.telemetry.Readings(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  readings,
		"count": len(readings),
	})
}
