package model

// ChannelKey identifies a chat channel within a team. Both parts are opaque
// and case-sensitive.
type ChannelKey struct {
	TeamID    string `json:"team_id"`
	ChannelID string `json:"channel_id"`
}

func (k ChannelKey) String() string {
	return k.TeamID + "-" + k.ChannelID
}

func (k ChannelKey) Valid() bool {
	return k.TeamID != "" && k.ChannelID != ""
}

// Subscriber is everything needed to address a channel for outbound calls.
type Subscriber struct {
	TeamID    string `json:"team_id"`
	ChannelID string `json:"channel_id"`
	BotToken  string `json:"bot_token"`
}

func (s Subscriber) Key() ChannelKey {
	return ChannelKey{TeamID: s.TeamID, ChannelID: s.ChannelID}
}

// Is reports whether s addresses the channel k. The token is not compared.
func (s Subscriber) Is(k ChannelKey) bool {
	return s.TeamID == k.TeamID && s.ChannelID == k.ChannelID
}
