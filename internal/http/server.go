package http

import (
	"context"
	"net/http"

	"github.com/jmehdipour/repo-digest/internal/config"
	"github.com/jmehdipour/repo-digest/internal/http/middleware"
	"github.com/jmehdipour/repo-digest/internal/logger"
	"github.com/jmehdipour/repo-digest/internal/metrics"
	"github.com/jmehdipour/repo-digest/internal/model"
	"github.com/jmehdipour/repo-digest/internal/repository"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Relay is what the transports need from relay.Service.
type Relay interface {
	Accept(ctx context.Context, src model.EventSource, headers map[string]string, raw []byte) error
	OnCommand(ctx context.Context, sub model.Subscriber, text string) string
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(cfg config.Config, svc Relay, deliveries repository.DeliveryLog, lg *zap.Logger) *Server {
	if lg == nil {
		lg = zap.NewNop()
	}
	if deliveries == nil {
		deliveries = repository.NopDeliveryLog{}
	}

	// echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLevel(cfg.Log.Level))
	e.Use(echoMid.Recover(), echoMid.Logger())
	if cfg.HTTP.BodyLimit != "" {
		e.Use(echoMid.BodyLimit(cfg.HTTP.BodyLimit))
	}

	if cfg.Metrics.Enabled {
		metrics.MustRegister(prometheus.DefaultRegisterer)
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		e.GET(path, echo.WrapHandler(promhttp.Handler()))
	}

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// webhooks
	e.POST("/webhook", webhookHandler(svc, model.SourceGitHub, lg))
	e.POST("/webhook/github", webhookHandler(svc, model.SourceGitHub, lg))
	e.POST("/webhook/gitlab", webhookHandler(svc, model.SourceGitLab, lg))

	// chat
	e.POST("/slack/commands", slashCommandHandler(svc, cfg.Slack.BotToken))

	// admin
	v1 := e.Group("/v1", middleware.AdminKeyMiddleware(cfg.HTTP.AdminKey))
	v1.GET("/reports/deliveries", listDeliveriesHandler(deliveries))

	return &Server{e: e, log: lg}
}

// echoLevel maps the zap level name onto echo's gommon logger.
func echoLevel(level string) log.Lvl {
	switch logger.Level(level) {
	case zapcore.DebugLevel:
		return log.DEBUG
	case zapcore.WarnLevel:
		return log.WARN
	case zapcore.ErrorLevel:
		return log.ERROR
	default:
		return log.INFO
	}
}

func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
