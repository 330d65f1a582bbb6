package model

// EventSource names the system a webhook came from.
type EventSource string

const (
	SourceGitHub EventSource = "github"
	SourceGitLab EventSource = "gitlab"
)

func (s EventSource) String() string { return string(s) }

// ParseEventSource normalizes input; empty => github.
func ParseEventSource(s string) (EventSource, bool) {
	switch s {
	case "", "github":
		return SourceGitHub, true
	case "gitlab":
		return SourceGitLab, true
	default:
		return SourceGitHub, false
	}
}

// Body is the long-form rendering used for the first message of a digest.
type Body struct {
	Text     string `json:"text"`
	Username string `json:"username"`
	IconURL  string `json:"icon_url"`
}

// Event is a normalized repository event.
type Event struct {
	Repository string `json:"repository"`
	Kind       string `json:"kind"` // issue | comment
	Short      string `json:"short"`
	Long       Body   `json:"long"`
	DeliveryID string `json:"delivery_id,omitempty"`
}
