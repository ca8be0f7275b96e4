package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/datatypes"

	"stresstest-server/entities"
	"stresstest-server/logs"
	"stresstest-server/repositories"
	"stresstest-server/services"
	"stresstest-server/usecases"
	"stresstest-server/ws"
)

// incomingMessage is the envelope every device message shares.
type incomingMessage struct {
	Type string `json:"type"` // battery | heartbeat
}

type batteryPayload struct {
	Level      int             `json:"level"`
	RecordedAt *time.Time      `json:"recorded_at"`
	Meta       json.RawMessage `json:"meta"`
}

// WSHandler groups dependencies for the telemetry socket.
type WSHandler struct {
	mgr       *ws.Manager
	tests     *usecases.DeviceTestUseCase
	processor *services.ReadingProcessor
}

func NewWSHandler(mgr *ws.Manager, tests *usecases.DeviceTestUseCase, processor *services.ReadingProcessor) *WSHandler {
	return &WSHandler{mgr: mgr, tests: tests, processor: processor}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// HandleTelemetryWS upgrades to websocket and reads battery readings.
// GET /ws?test_id=<device_test_id>&token=<jwt>
func (h *WSHandler) HandleTelemetryWS(c *gin.Context) {
	testID := c.Query("test_id")
	if testID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing test_id"})
		return
	}
	if _, err := h.tests.GetDeviceTest(c.Request.Context(), testID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Device test not found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logs.Logger.Warnf("websocket upgrade failed: %v", err)
		return
	}
	h.mgr.Register(testID, conn)
	log := logs.Logger.WithField("device_test_id", testID)
	log.Info("device connected")

	defer func() {
		h.mgr.Unregister(testID, conn)
		log.Info("device disconnected")
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("device closed connection")
			} else {
				log.Warnf("read error: %v", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		var base incomingMessage
		if err := json.Unmarshal(message, &base); err != nil {
			log.Warnf("invalid json: %v", err)
			continue
		}

		switch base.Type {
		case "battery":
			var payload batteryPayload
			if err := json.Unmarshal(message, &payload); err != nil {
				log.Warnf("invalid battery payload: %v", err)
				continue
			}
			h.processor.AddReading(readingFrom(testID, payload))
		case "heartbeat":
		default:
			log.Warnf("unknown message type: %s", base.Type)
		}
	}
}

func readingFrom(testID string, p batteryPayload) entities.BatteryReading {
	at := time.Now().UTC()
	if p.RecordedAt != nil {
		at = p.RecordedAt.UTC()
	}
	r := entities.BatteryReading{DeviceTestID: testID, Level: p.Level, RecordedAt: at}
	if len(p.Meta) > 0 && string(p.Meta) != "null" {
		r.Meta = datatypes.JSON(p.Meta)
	}
	return r
}

// GetConnectedDevices GET /api/v1/devices/connected
func (h *WSHandler) GetConnectedDevices(c *gin.Context) {
	conns := h.mgr.List()
	c.JSON(http.StatusOK, gin.H{"data": conns, "count": len(conns)})
}
