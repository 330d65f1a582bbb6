// Package chat sends and edits messages in chat channels.
package chat

import (
	"context"
	"errors"

	"github.com/jmehdipour/repo-digest/internal/model"
)

var ErrCircuitOpen = errors.New("chat: circuit open")

type Attachment struct {
	Text     string   `json:"text"`
	MrkdwnIn []string `json:"mrkdwn_in,omitempty"`
}

type Message struct {
	Text        string       `json:"text"`
	Username    string       `json:"username,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Client is the outbound side of the relay.
type Client interface {
	// Post sends a new message and returns the handle used to edit it.
	Post(ctx context.Context, to model.Subscriber, msg Message) (string, error)
	// Update replaces the content of the message identified by handle.
	Update(ctx context.Context, to model.Subscriber, handle string, msg Message) error
}
