package model

import "time"

type DeliveryOp string

const (
	OpPost   DeliveryOp = "post"
	OpUpdate DeliveryOp = "update"
)

func (o DeliveryOp) String() string { return string(o) }

type DeliveryStatus string

const (
	DeliveryOK     DeliveryStatus = "ok"
	DeliveryFailed DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string { return string(s) }

// Delivery is one outbound chat call as recorded in the delivery log.
type Delivery struct {
	ID         string         `db:"id"          json:"id"`
	TeamID     string         `db:"team_id"     json:"team_id"`
	ChannelID  string         `db:"channel_id"  json:"channel_id"`
	Repository string         `db:"repository"  json:"repository"`
	Op         DeliveryOp     `db:"op"          json:"op"`
	Status     DeliveryStatus `db:"status"      json:"status"`
	Handle     string         `db:"handle"      json:"handle"`
	Summaries  int            `db:"summaries"   json:"summaries"`
	Error      string         `db:"error"       json:"error,omitempty"`
	CreatedAt  time.Time      `db:"created_at"  json:"created_at"`
}
