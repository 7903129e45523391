package chat

import (
	"regexp"

	"github.com/own-c/rt/emotes"
)

// privmsgPattern pulls the tags and body out of a raw PRIVMSG line. Tag order
// is fixed in the IRCv3 tag block Twitch emits (alphabetical), so a single
// lazy pass is enough.
var privmsgPattern = regexp.MustCompile(
	`^@.*?color=(?P<color>[^;]*).*?display-name=(?P<display_name>[^;]*).*?first-msg=(?P<first_msg>[^;]*).*?PRIVMSG\s+\S+\s+:(?P<message>.*)$`)

// ParseLine parses one raw IRC line into a ChatMessage. The second return is
// false for anything that is not a well-formed tagged PRIVMSG (server
// notices, JOIN confirmations, and so on) or that carries an empty body.
func ParseLine(line string, emoteTable map[string]emotes.Emote) (ChatMessage, bool) {
	m := privmsgPattern.FindStringSubmatch(line)
	if m == nil {
		return ChatMessage{}, false
	}
	var color, name, firstMsg, body string
	for i, group := range privmsgPattern.SubexpNames() {
		switch group {
		case "color":
			color = m[i]
		case "display_name":
			name = m[i]
		case "first_msg":
			firstMsg = m[i]
		case "message":
			body = m[i]
		}
	}
	if name == "" || body == "" {
		return ChatMessage{}, false
	}
	return ChatMessage{
		Color:     color,
		Name:      name,
		FirstMsg:  firstMsg == "1",
		Fragments: ParseFragments(body, emoteTable),
	}, true
}
