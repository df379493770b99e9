package weatherapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/haakond/weatherproof"
	"github.com/haakond/weatherproof/weather"
)

const requestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// Server wraps the gin router and its HTTP listener.
type Server struct {
	router *gin.Engine
	http   *http.Server
	logger *zap.Logger
}

// NewServer builds the HTTP server over a weather service. When metrics
// carries its own registry it backs the /metrics endpoint, otherwise the
// default Prometheus handler serves it.
func NewServer(service *weather.Service, metrics *weatherproof.MetricsCollector, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger(logger))
	router.Use(cors.New(corsConfig()))

	handlers := NewHandlers(service, logger)

	router.GET("/", handlers.GetWeather)
	router.GET("/weather", handlers.GetWeather)
	router.GET("/weather/:city", handlers.GetCityWeather)
	router.GET("/cities", handlers.ListCities)
	router.GET("/health", handlers.GetHealth)

	router.POST("/admin/reset/:city", handlers.ResetCity)
	router.GET("/admin/breakers", handlers.GetBreakers)

	if reg := metrics.GetRegistry(); reg != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	} else {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return &Server{router: router, logger: logger}
}

// corsConfig allows any origin to read, only GET/POST/OPTIONS, with
// preflight results cached for a day.
func corsConfig() cors.Config {
	return cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Accept",
			"Origin",
			"Authorization",
			requestIDHeader,
		},
		MaxAge: 24 * time.Hour,
	}
}

// requestID assigns every request a correlation ID, honoring one sent
// by the caller, and echoes it on the response.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("requestId", requestIDFrom(c)),
		)
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP on addr until the listener fails or Shutdown is
// called.
func (s *Server) Run(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("HTTP server listening", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.http.Shutdown(ctx)
}
