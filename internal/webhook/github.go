package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-github/v66/github"
	"github.com/jmehdipour/repo-digest/internal/model"
)

const GitHubIconURL = "https://assets-cdn.github.com/images/modules/logos_page/GitHub-Mark.png"

const (
	githubIssues       = "issues"
	githubIssueComment = "issue_comment"
)

// ParseGitHub normalizes issues and issue_comment deliveries. eventType is
// the X-GitHub-Event header. Relays that strip it still work: an empty
// type is inferred from the payload shape.
func ParseGitHub(eventType string, raw []byte) (model.Event, error) {
	if eventType == "" {
		t, err := githubShape(raw)
		if err != nil {
			return model.Event{}, err
		}
		eventType = t
	}
	if eventType != githubIssues && eventType != githubIssueComment {
		return model.Event{}, fmt.Errorf("github %s: %w", eventType, ErrUnsupportedEvent)
	}

	parsed, err := github.ParseWebHook(eventType, raw)
	if err != nil {
		return model.Event{}, fmt.Errorf("github: %w: %v", ErrInvalidPayload, err)
	}

	switch e := parsed.(type) {
	case *github.IssuesEvent:
		repo := e.GetRepo().GetFullName()
		if repo == "" || e.Issue == nil {
			return model.Event{}, fmt.Errorf("github issues without repository: %w", ErrUnsupportedEvent)
		}
		is := e.GetIssue()
		return issueEvent(repo, e.GetAction(), is.GetUser().GetLogin(), is.GetHTMLURL(),
			is.GetTitle(), is.GetBody(), GitHubIconURL), nil

	case *github.IssueCommentEvent:
		repo := e.GetRepo().GetFullName()
		if repo == "" || e.Issue == nil || e.Comment == nil {
			return model.Event{}, fmt.Errorf("github issue_comment without repository: %w", ErrUnsupportedEvent)
		}
		login := e.GetComment().GetUser().GetLogin()
		if login == "" {
			login = e.GetIssue().GetUser().GetLogin()
		}
		return commentEvent(repo, e.GetAction(), login, "https://github.com/"+login,
			e.GetComment().GetHTMLURL(), e.GetComment().GetBody(), GitHubIconURL), nil

	default:
		return model.Event{}, fmt.Errorf("github %T: %w", parsed, ErrUnsupportedEvent)
	}
}

// githubShape tells issue_comment payloads (issue + comment) from issues
// payloads (issue only).
func githubShape(raw []byte) (string, error) {
	var shape struct {
		Issue   json.RawMessage `json:"issue"`
		Comment json.RawMessage `json:"comment"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return "", fmt.Errorf("github: %w: %v", ErrInvalidPayload, err)
	}
	switch {
	case shape.Issue == nil:
		return "", fmt.Errorf("github payload without issue: %w", ErrUnsupportedEvent)
	case shape.Comment != nil:
		return githubIssueComment, nil
	default:
		return githubIssues, nil
	}
}
