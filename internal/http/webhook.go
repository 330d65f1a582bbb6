package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/jmehdipour/repo-digest/internal/model"
	"github.com/jmehdipour/repo-digest/internal/relay"
	"github.com/jmehdipour/repo-digest/internal/webhook"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// forwardedHeaders are the request headers the normalizers look at.
var forwardedHeaders = []string{
	"X-GitHub-Event",
	"X-GitHub-Delivery",
	"X-Gitlab-Event",
	"X-Gitlab-Event-UUID",
}

func webhookHeaders(r *http.Request) map[string]string {
	h := make(map[string]string, len(forwardedHeaders))
	for _, name := range forwardedHeaders {
		if v := r.Header.Get(name); v != "" {
			h[http.CanonicalHeaderKey(name)] = v
		}
	}
	return h
}

// webhookHandler acknowledges every delivery it could read. Only payloads
// that are not JSON are refused, and a full queue is reported so the
// sender retries.
func webhookHandler(svc Relay, src model.EventSource, lg *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		}

		err = svc.Accept(c.Request().Context(), src, webhookHeaders(c.Request()), raw)
		switch {
		case err == nil:
		case errors.Is(err, webhook.ErrInvalidPayload):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		case errors.Is(err, relay.ErrQueueUnavailable):
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
		default:
			lg.Warn("webhook accepted with errors", zap.String("source", src.String()), zap.Error(err))
		}
		return c.String(http.StatusOK, "ok")
	}
}
