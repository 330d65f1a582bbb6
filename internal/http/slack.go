package http

import (
	"net/http"
	"strings"

	"github.com/jmehdipour/repo-digest/internal/model"
	echo "github.com/labstack/echo/v4"
)

type slashReply struct {
	ResponseType string `json:"response_type"`
	Text         string `json:"text"`
}

// slashCommandHandler serves Slack slash commands. The reply is posted
// in channel so everyone sees link changes.
func slashCommandHandler(svc Relay, botToken func(team string) string) echo.HandlerFunc {
	return func(c echo.Context) error {
		team := strings.TrimSpace(c.FormValue("team_id"))
		sub := model.Subscriber{
			TeamID:    team,
			ChannelID: strings.TrimSpace(c.FormValue("channel_id")),
			BotToken:  botToken(team),
		}
		if !sub.Key().Valid() {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "team_id and channel_id are required"})
		}

		reply := svc.OnCommand(c.Request().Context(), sub, c.FormValue("text"))

		return c.JSON(http.StatusOK, slashReply{ResponseType: "in_channel", Text: reply})
	}
}
