package cmd

import (
	"fmt"
	"strings"

	"github.com/jmehdipour/repo-digest/internal/app"
	"github.com/jmehdipour/repo-digest/internal/logger"
	"github.com/jmehdipour/repo-digest/internal/model"
	"github.com/spf13/cobra"
)

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Inspect and edit channel links in the durable index",
}

var linksLinkCmd = &cobra.Command{
	Use:   "link <team> <channel> <owner/repo>",
	Short: "Link a repository to a channel",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := channelArg(args[0], args[1])
		if err != nil {
			return err
		}
		return withApp(func(a *app.App) error {
			sub := model.Subscriber{TeamID: k.TeamID, ChannelID: k.ChannelID, BotToken: a.Config.Slack.BotToken(k.TeamID)}
			reply, err := a.Service.OnLinkCommand(cmd.Context(), sub, args[2])
			fmt.Println(reply)
			return err
		})
	},
}

var linksUnlinkCmd = &cobra.Command{
	Use:   "unlink <team> <channel> <owner/repo>",
	Short: "Unlink a repository from a channel",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := channelArg(args[0], args[1])
		if err != nil {
			return err
		}
		return withApp(func(a *app.App) error {
			reply, err := a.Service.OnUnlinkCommand(cmd.Context(), k, args[2])
			fmt.Println(reply)
			return err
		})
	},
}

var linksListCmd = &cobra.Command{
	Use:   "list <team> <channel>",
	Short: "List the repositories linked to a channel",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := channelArg(args[0], args[1])
		if err != nil {
			return err
		}
		return withApp(func(a *app.App) error {
			reply, err := a.Service.OnListCommand(cmd.Context(), k)
			fmt.Println(reply)
			return err
		})
	},
}

func init() {
	linksCmd.AddCommand(linksLinkCmd, linksUnlinkCmd, linksListCmd)
}

func channelArg(team, channel string) (model.ChannelKey, error) {
	k := model.ChannelKey{TeamID: strings.TrimSpace(team), ChannelID: strings.TrimSpace(channel)}
	if !k.Valid() {
		return model.ChannelKey{}, fmt.Errorf("team and channel must not be empty")
	}
	return k, nil
}

func withApp(fn func(a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Build(cfg, logger.Log, app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}
