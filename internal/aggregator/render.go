package aggregator

import (
	"github.com/jmehdipour/repo-digest/internal/chat"
	"github.com/jmehdipour/repo-digest/internal/model"
)

// postMessage is the first message of a digest: the event's long form.
func postMessage(ev model.Event) chat.Message {
	return chat.Message{
		Text:     ev.Long.Text,
		Username: ev.Long.Username,
		IconURL:  ev.Long.IconURL,
	}
}

// digestMessage replaces the digest body with one line per event.
func digestMessage(ev model.Event, summaries []string) chat.Message {
	atts := make([]chat.Attachment, 0, len(summaries))
	for _, s := range summaries {
		atts = append(atts, chat.Attachment{Text: s, MrkdwnIn: []string{"text"}})
	}
	return chat.Message{
		Username:    ev.Repository,
		IconURL:     ev.Long.IconURL,
		Attachments: atts,
	}
}
