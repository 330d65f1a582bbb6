// Package command parses the chat commands users type to manage links.
package command

import (
	"fmt"
	"strings"
)

type Verb string

const (
	VerbLink   Verb = "link"
	VerbUnlink Verb = "unlink"
	VerbList   Verb = "links"
	VerbHelp   Verb = "help"
)

func (v Verb) String() string { return string(v) }

type Command struct {
	Verb Verb
	Repo string
}

const Usage = "usage: `link <owner/repo>`, `unlink <owner/repo>` or `links`"

// Parse reads a command line. The verb is case-insensitive; anything it
// does not recognize parses as VerbHelp.
func Parse(text string) Command {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{Verb: VerbHelp}
	}
	verb := Verb(strings.ToLower(fields[0]))
	switch verb {
	case VerbLink, VerbUnlink:
		if len(fields) != 2 || !validRepo(fields[1]) {
			return Command{Verb: VerbHelp}
		}
		return Command{Verb: verb, Repo: fields[1]}
	case VerbList:
		if len(fields) != 1 {
			return Command{Verb: VerbHelp}
		}
		return Command{Verb: VerbList}
	}
	return Command{Verb: VerbHelp}
}

// validRepo accepts owner/name and nested GitLab group paths.
func validRepo(repo string) bool {
	parts := strings.Split(repo, "/")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

func Linked(repo string) string   { return "linked " + repo }
func Unlinked(repo string) string { return "unlinked " + repo }

// Links renders the list reply, e.g. "2 links `a/b`,`c/d`".
func Links(repos []string) string {
	noun := "link"
	if len(repos) > 1 {
		noun = "links"
	}
	quoted := make([]string, len(repos))
	for i, r := range repos {
		quoted[i] = "`" + r + "`"
	}
	return strings.TrimSpace(fmt.Sprintf("%d %s %s", len(repos), noun, strings.Join(quoted, ",")))
}

func Failure(err error) string { return "😱 " + err.Error() }
