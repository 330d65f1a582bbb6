package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/repo-digest/internal/repository"
	echo "github.com/labstack/echo/v4"
)

func listDeliveriesHandler(deliveries repository.DeliveryLog) echo.HandlerFunc {
	return func(c echo.Context) error {
		team := strings.TrimSpace(c.QueryParam("team_id"))
		if team == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "team_id is required"})
		}
		channel := strings.TrimSpace(c.QueryParam("channel_id"))

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		rows, err := deliveries.ListByChannel(c.Request().Context(), team, channel, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
