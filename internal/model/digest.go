package model

// DigestKey identifies one aggregation slot: a repository as seen by one channel.
type DigestKey struct {
	TeamID     string
	ChannelID  string
	Repository string
}

func NewDigestKey(s Subscriber, repo string) DigestKey {
	return DigestKey{TeamID: s.TeamID, ChannelID: s.ChannelID, Repository: repo}
}

func (k DigestKey) String() string {
	return k.TeamID + "~" + k.ChannelID + "~" + k.Repository
}
