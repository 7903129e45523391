// Package chat maintains the relay's single upstream IRC-over-websocket
// connection, parses incoming chat traffic, and fans messages out to
// local subscribers.
package chat

import (
	"regexp"
	"strings"

	"github.com/own-c/rt/emotes"
)

// FragmentKind discriminates the segments of a rendered chat message.
type FragmentKind int

const (
	FragmentText  FragmentKind = 0
	FragmentEmote FragmentKind = 1
	FragmentURL   FragmentKind = 2

	// fragmentNone marks "no previous fragment" while assembling, so the
	// first text token never merges into anything.
	fragmentNone FragmentKind = -1
)

// Fragment is one renderable segment of a message. JSON keys are kept to one
// letter since the payload is re-encoded for every subscriber.
type Fragment struct {
	Kind    FragmentKind  `json:"t"`
	Content string        `json:"c"`
	Emote   *emotes.Emote `json:"e,omitempty"`
}

// ChatMessage is the parsed form of one PRIVMSG delivered to subscribers.
type ChatMessage struct {
	Color     string     `json:"c"`
	Name      string     `json:"n"`
	FirstMsg  bool       `json:"f"`
	Fragments []Fragment `json:"m"`
}

var urlPattern = regexp.MustCompile(`^(https?://)?(www\.)?([a-zA-Z0-9-]{1,256})\.[a-zA-Z0-9]{2,}(/[^\s]*)?$`)

// ParseFragments splits a message body into text, emote, and URL fragments.
// Tokens are whitespace separated; a token matching the emote table wins over
// the URL pattern only when it is not a URL, so precedence is URL, then emote,
// then text. Consecutive text tokens collapse into a single fragment.
func ParseFragments(message string, emoteTable map[string]emotes.Emote) []Fragment {
	var out []Fragment
	prev := fragmentNone

	for _, token := range strings.Fields(message) {
		switch {
		case urlPattern.MatchString(token):
			out = append(out, Fragment{Kind: FragmentURL, Content: token})
			prev = FragmentURL
		case emoteTable != nil && hasEmote(emoteTable, token):
			e := emoteTable[token]
			out = append(out, Fragment{Kind: FragmentEmote, Content: token, Emote: &e})
			prev = FragmentEmote
		default:
			if prev == FragmentText {
				last := &out[len(out)-1]
				last.Content += " " + token
			} else {
				out = append(out, Fragment{Kind: FragmentText, Content: token})
			}
			prev = FragmentText
		}
	}
	return out
}

func hasEmote(table map[string]emotes.Emote, token string) bool {
	_, ok := table[token]
	return ok
}
