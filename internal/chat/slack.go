package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jmehdipour/repo-digest/internal/model"
	"github.com/jonboulle/clockwork"
)

// SlackAPIError is an ok=false reply from the Web API. It means Slack was
// reachable, so it does not count against the breaker.
type SlackAPIError struct {
	Method string
	Code   string
}

func (e *SlackAPIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Code)
}

type SlackClient struct {
	baseURL string
	client  *http.Client
	br      *MicroBreaker
}

var _ Client = (*SlackClient)(nil)

func NewSlackClient(baseURL string, timeoutMs, failThreshold, openForMs int, clock clockwork.Clock) *SlackClient {
	if baseURL == "" {
		baseURL = "https://slack.com/api"
	}

	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	if failThreshold <= 0 {
		failThreshold = 5
	}

	if openForMs <= 0 {
		openForMs = 15000
	}

	return &SlackClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:      NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond, clock),
	}
}

func (c *SlackClient) Breaker() *MicroBreaker { return c.br }

type slackPayload struct {
	Channel     string       `json:"channel"`
	TS          string       `json:"ts,omitempty"`
	Text        string       `json:"text"`
	Username    string       `json:"username,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	AsUser      bool         `json:"as_user"`
	Mrkdwn      bool         `json:"mrkdwn"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type slackReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	TS    string `json:"ts"`
}

func (c *SlackClient) Post(ctx context.Context, to model.Subscriber, msg Message) (string, error) {
	reply, err := c.call(ctx, "chat.postMessage", to.BotToken, slackPayload{
		Channel:     to.ChannelID,
		Text:        msg.Text,
		Username:    msg.Username,
		IconURL:     msg.IconURL,
		Mrkdwn:      true,
		Attachments: msg.Attachments,
	})
	if err != nil {
		return "", err
	}
	if reply.TS == "" {
		return "", &SlackAPIError{Method: "chat.postMessage", Code: "missing_ts"}
	}
	return reply.TS, nil
}

func (c *SlackClient) Update(ctx context.Context, to model.Subscriber, handle string, msg Message) error {
	_, err := c.call(ctx, "chat.update", to.BotToken, slackPayload{
		Channel:     to.ChannelID,
		TS:          handle,
		Text:        msg.Text,
		Username:    msg.Username,
		IconURL:     msg.IconURL,
		Mrkdwn:      true,
		Attachments: msg.Attachments,
	})
	return err
}

func (c *SlackClient) call(ctx context.Context, method, token string, p slackPayload) (*slackReply, error) {
	if !c.br.TryAcquire() {
		return nil, ErrCircuitOpen
	}

	reply, err := c.do(ctx, method, token, p)
	if err != nil {
		c.br.OnFailure()
		return nil, err
	}
	c.br.OnSuccess()

	if !reply.OK {
		return nil, &SlackAPIError{Method: method, Code: reply.Error}
	}
	return reply, nil
}

func (c *SlackClient) do(ctx context.Context, method, token string, p slackPayload) (*slackReply, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("slack %s: status=%d", method, res.StatusCode)
	}

	var reply slackReply
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("slack %s: decode reply: %w", method, err)
	}
	return &reply, nil
}
