package webhook

import (
	"fmt"

	"github.com/jmehdipour/repo-digest/internal/model"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

const GitLabIconURL = "https://about.gitlab.com/images/press/logo/png/gitlab-icon-rgb.png"

// ParseGitLab normalizes Issue Hook and Note Hook (on issues) deliveries.
// eventType is the X-Gitlab-Event header.
func ParseGitLab(eventType string, raw []byte) (model.Event, error) {
	et := gitlab.EventType(eventType)
	if et != gitlab.EventTypeIssue && et != gitlab.EventTypeNote {
		return model.Event{}, fmt.Errorf("gitlab %q: %w", eventType, ErrUnsupportedEvent)
	}

	parsed, err := gitlab.ParseWebhook(et, raw)
	if err != nil {
		return model.Event{}, fmt.Errorf("gitlab: %w: %v", ErrInvalidPayload, err)
	}

	switch e := parsed.(type) {
	case *gitlab.IssueEvent:
		repo := e.Project.PathWithNamespace
		if repo == "" {
			return model.Event{}, fmt.Errorf("gitlab issue without project: %w", ErrUnsupportedEvent)
		}
		var login string
		if e.User != nil {
			login = e.User.Username
		}
		return issueEvent(repo, e.ObjectAttributes.Action, login, e.ObjectAttributes.URL,
			e.ObjectAttributes.Title, e.ObjectAttributes.Description, GitLabIconURL), nil

	case *gitlab.IssueCommentEvent:
		repo := e.Project.PathWithNamespace
		if repo == "" {
			return model.Event{}, fmt.Errorf("gitlab note without project: %w", ErrUnsupportedEvent)
		}
		var login string
		if e.User != nil {
			login = e.User.Username
		}
		return commentEvent(repo, "created", login, "",
			e.ObjectAttributes.URL, e.ObjectAttributes.Note, GitLabIconURL), nil

	default:
		return model.Event{}, fmt.Errorf("gitlab %T: %w", parsed, ErrUnsupportedEvent)
	}
}
