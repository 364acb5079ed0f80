package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/annel0/room-scanner/internal/display"
	"github.com/annel0/room-scanner/internal/logging"
	"github.com/annel0/room-scanner/internal/middleware"
	"github.com/annel0/room-scanner/internal/room"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RoomController команды и состояние движка, доступные через REST.
// Кнопки "подтвердить" и "скрыть/показать" интерфейса вызывают эти методы.
type RoomController interface {
	Snapshot() room.Snapshot
	Confirm(ctx context.Context) bool
	ToggleVisibility(ctx context.Context) bool
	SetVisibility(ctx context.Context, visible bool)
}

// DisplayReader последние значения каналов дисплея (display.MemorySink)
type DisplayReader interface {
	Values() map[display.Channel]string
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Addr       string                // адрес для запуска сервера (":8088")
	Controller RoomController        // движок комнаты
	Display    DisplayReader         // может быть nil
	Registry   *prometheus.Registry  // nil — глобальный регистр Prometheus
	Logger     *logging.Logger       // nil — глобальный логгер
}

// GenericResponse общий формат ответа
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RoomResponse ответ GET /api/room
type RoomResponse struct {
	room.Snapshot
	Display map[display.Channel]string `json:"display,omitempty"`
}

// RestServer представляет REST API сервер
type RestServer struct {
	router     *gin.Engine
	controller RoomController
	display    DisplayReader
	monitor    *processMonitor
	addr       string
	logger     *logging.Logger
	httpServer *http.Server
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Addr == "" {
		config.Addr = ":8088"
	}
	if config.Logger == nil {
		config.Logger = logging.Default()
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("room_api"))
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())

	var reg prometheus.Registerer
	var gatherer prometheus.Gatherer
	if config.Registry != nil {
		reg, gatherer = config.Registry, config.Registry
	}
	promMw := middleware.NewPrometheusMiddleware("room_api", reg)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, gatherer)

	server := &RestServer{
		router:     router,
		controller: config.Controller,
		display:    config.Display,
		monitor:    newProcessMonitor(),
		addr:       config.Addr,
		logger:     config.Logger,
	}
	server.setupRoutes()
	return server
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	api := rs.router.Group("/api")
	{
		api.GET("/room", rs.handleRoom)
		api.POST("/room/confirm", rs.handleConfirm)
		api.POST("/surfaces/toggle", rs.handleToggle)
		api.POST("/surfaces/visibility", rs.handleSetVisibility)
		api.GET("/stats", rs.handleStats)
	}

	rs.router.GET("/health", rs.handleHealth)
}

// Router возвращает gin.Engine (для тестов через httptest)
func (rs *RestServer) Router() *gin.Engine {
	return rs.router
}

// handleRoom возвращает состояние комнаты. До первой точки bounds == null.
func (rs *RestServer) handleRoom(c *gin.Context) {
	resp := RoomResponse{Snapshot: rs.controller.Snapshot()}
	if rs.display != nil {
		resp.Display = rs.display.Values()
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Состояние комнаты", Data: resp})
}

// handleConfirm подтверждает комнату. Повторный вызов возвращает 200 с changed=false.
func (rs *RestServer) handleConfirm(c *gin.Context) {
	snap := rs.controller.Snapshot()
	if snap.Inert {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Success: false, Message: "Движок комнаты отключен"})
		return
	}

	changed := rs.controller.Confirm(c.Request.Context())
	message := "Комната подтверждена"
	if !changed {
		message = "Комната уже подтверждена"
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: message,
		Data: gin.H{
			"changed": changed,
			"state":   room.Confirmed.String(),
		},
	})
}

// handleToggle инвертирует видимость всех поверхностей
func (rs *RestServer) handleToggle(c *gin.Context) {
	visible := rs.controller.ToggleVisibility(c.Request.Context())
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Видимость поверхностей изменена",
		Data:    gin.H{"visible": visible},
	})
}

// VisibilityRequest тело POST /api/surfaces/visibility
type VisibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// handleSetVisibility выставляет видимость всем поверхностям
func (rs *RestServer) handleSetVisibility(c *gin.Context) {
	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}
	rs.controller.SetVisibility(c.Request.Context(), *req.Visible)
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Видимость поверхностей установлена",
		Data:    gin.H{"visible": *req.Visible},
	})
}

// handleStats возвращает статистику процесса и сканирования
func (rs *RestServer) handleStats(c *gin.Context) {
	snap := rs.controller.Snapshot()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data: gin.H{
			"process": rs.monitor.Snapshot(),
			"scan": gin.H{
				"state":            snap.State,
				"surfaces":         len(snap.Surfaces),
				"points_ingested":  snap.PointsIngested,
				"points_discarded": snap.PointsDiscarded,
			},
			"server_time": time.Now().Unix(),
		},
	})
}

// handleHealth проверка состояния. Неактивный движок — 503.
func (rs *RestServer) handleHealth(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if rs.controller.Snapshot().Inert {
		status, code = "inert", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"time":   time.Now().Unix(),
	})
}

// Start запускает HTTP сервер в отдельной горутине
func (rs *RestServer) Start() error {
	rs.httpServer = &http.Server{
		Addr:              rs.addr,
		Handler:           rs.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := rs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rs.logger.Error("❌ Ошибка REST API сервера: %v", err)
		}
	}()

	rs.logger.Info("✅ REST API сервер запущен на http://localhost%s", rs.addr)
	rs.logger.Info("📋 Доступные эндпоинты:")
	rs.logger.Info("   GET  /health                 - Проверка состояния")
	rs.logger.Info("   GET  /api/room               - Границы комнаты и состояние")
	rs.logger.Info("   POST /api/room/confirm       - Подтвердить комнату")
	rs.logger.Info("   POST /api/surfaces/toggle    - Скрыть/показать поверхности")
	rs.logger.Info("   GET  /api/stats              - Статистика процесса")
	rs.logger.Info("   GET  /metrics                - Prometheus")
	return nil
}

// Stop останавливает HTTP сервер с таймаутом
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rs.logger.Info("🛑 Остановка REST API сервера...")
	return rs.httpServer.Shutdown(ctx)
}
