// Package webhook normalizes repository webhook payloads into model.Event.
package webhook

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jmehdipour/repo-digest/internal/model"
)

var (
	// ErrUnsupportedEvent marks payloads that are valid but not relayed.
	ErrUnsupportedEvent = errors.New("unsupported event")
	ErrInvalidPayload   = errors.New("invalid payload")
)

const (
	shortBodyMax  = 25
	shortTitleMax = 25
)

// Parse dispatches to the source specific normalizer. headers use
// canonical MIME header keys.
func Parse(src model.EventSource, headers map[string]string, raw []byte) (model.Event, error) {
	switch src {
	case model.SourceGitLab:
		return ParseGitLab(headers[http.CanonicalHeaderKey("X-Gitlab-Event")], raw)
	default:
		return ParseGitHub(headers[http.CanonicalHeaderKey("X-GitHub-Event")], raw)
	}
}

// DeliveryID picks the sender's delivery identifier out of the headers.
func DeliveryID(headers map[string]string) string {
	for _, h := range []string{"X-GitHub-Delivery", "X-Gitlab-Event-UUID"} {
		if v := headers[http.CanonicalHeaderKey(h)]; v != "" {
			return v
		}
	}
	return ""
}

var spaces = regexp.MustCompile(`\s\s+`)

// trimComment flattens body onto one line and cuts it to max runes.
func trimComment(body string, max int) string {
	body = strings.ReplaceAll(body, "\n", " ")
	body = spaces.ReplaceAllString(body, " ")
	if utf8.RuneCountInString(body) > max {
		body = string([]rune(body)[:max]) + "…"
	}
	return body
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// link renders a Slack mrkdwn link.
func link(url, label string) string {
	if url == "" {
		return label
	}
	return "<" + url + "|" + label + ">"
}

func commentEvent(repo, action, login, profileURL, commentURL, body, icon string) model.Event {
	who := link(profileURL, login)
	return model.Event{
		Repository: repo,
		Kind:       "comment",
		Short:      "∆ " + link(commentURL, "comment") + " " + action + " by " + who + " • " + trimComment(body, shortBodyMax),
		Long: model.Body{
			Text:     link(commentURL, "comment") + " " + action + " by " + who + ":\n" + body,
			Username: repo,
			IconURL:  icon,
		},
	}
}

func issueEvent(repo, action, login, issueURL, title, body, icon string) model.Event {
	return model.Event{
		Repository: repo,
		Kind:       "issue",
		Short:      "∆ " + login + " " + action + " issue on " + truncate(title, shortTitleMax),
		Long: model.Body{
			Text:     login + " " + action + " issue on " + link(issueURL, title) + ":\n" + body,
			Username: repo,
			IconURL:  icon,
		},
	}
}
