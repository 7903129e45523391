package chat

import (
	"testing"

	"github.com/own-c/rt/emotes"
)

const sampleLine = `@badge-info=;badges=;client-nonce=abc;color=#FF0000;display-name=Bob;emotes=;first-msg=1;flags=;id=x;mod=0;returning-chatter=0;room-id=1;subscriber=0;tmi-sent-ts=1;turbo=0;user-id=2;user-type= :bob!bob@bob.tmi.twitch.tv PRIVMSG #somechannel :hello there`

func TestParseLinePrivmsg(t *testing.T) {
	msg, ok := ParseLine(sampleLine, nil)
	if !ok {
		t.Fatal("expected line to parse")
	}
	if msg.Color != "#FF0000" {
		t.Errorf("color = %q", msg.Color)
	}
	if msg.Name != "Bob" {
		t.Errorf("name = %q", msg.Name)
	}
	if !msg.FirstMsg {
		t.Error("first-msg flag lost")
	}
	if len(msg.Fragments) != 1 || msg.Fragments[0].Content != "hello there" {
		t.Errorf("fragments = %+v", msg.Fragments)
	}
}

func TestParseLineNotFirstMessage(t *testing.T) {
	line := `@color=;display-name=ana;first-msg=0;mod=0 :ana!ana@ana.tmi.twitch.tv PRIVMSG #chan :ok`
	msg, ok := ParseLine(line, nil)
	if !ok {
		t.Fatal("expected line to parse")
	}
	if msg.FirstMsg {
		t.Error("first-msg should be false")
	}
	if msg.Color != "" {
		t.Errorf("color = %q, want empty", msg.Color)
	}
}

func TestParseLineRejectsNonPrivmsg(t *testing.T) {
	for _, line := range []string{
		"PING :tmi.twitch.tv",
		":tmi.twitch.tv 001 justinfan12345 :Welcome, GLHF!",
		":justinfan12345!justinfan12345@justinfan12345.tmi.twitch.tv JOIN #somechannel",
		"",
	} {
		if _, ok := ParseLine(line, nil); ok {
			t.Errorf("line %q should not parse", line)
		}
	}
}

func TestParseLineRejectsEmptyDisplayName(t *testing.T) {
	line := `@color=#FF0000;display-name=;first-msg=0 :x!x@x.tmi.twitch.tv PRIVMSG #chan :hi`
	if _, ok := ParseLine(line, nil); ok {
		t.Error("message without display name should be dropped")
	}
}

func TestParseLineRejectsEmptyBody(t *testing.T) {
	line := `@color=#FF0000;display-name=Bob;first-msg=0 :bob!bob@bob.tmi.twitch.tv PRIVMSG #chan :`
	if _, ok := ParseLine(line, nil); ok {
		t.Error("empty body should not parse")
	}
}

func TestParseLineUsesEmoteTable(t *testing.T) {
	line := `@color=;display-name=ana;first-msg=0 :ana!ana@ana.tmi.twitch.tv PRIVMSG #chan :Pog hype`
	msg, ok := ParseLine(line, map[string]emotes.Emote{"Pog": {Name: "Pog"}})
	if !ok {
		t.Fatal("expected line to parse")
	}
	if len(msg.Fragments) != 2 || msg.Fragments[0].Kind != FragmentEmote {
		t.Errorf("fragments = %+v", msg.Fragments)
	}
}
