package chat

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/own-c/rt/emotes"
)

func TestParseFragmentsMixed(t *testing.T) {
	table := map[string]emotes.Emote{
		"KappaEmote": {Name: "KappaEmote", URL: "https://cdn.example/kappa", Width: 28, Height: 28},
	}
	got := ParseFragments("hello world http://x.test KappaEmote more text", table)
	if len(got) != 4 {
		t.Fatalf("expected 4 fragments, got %d: %+v", len(got), got)
	}
	if got[0].Kind != FragmentText || got[0].Content != "hello world" {
		t.Errorf("fragment 0 = %+v", got[0])
	}
	if got[1].Kind != FragmentURL || got[1].Content != "http://x.test" {
		t.Errorf("fragment 1 = %+v", got[1])
	}
	if got[2].Kind != FragmentEmote || got[2].Content != "KappaEmote" || got[2].Emote == nil {
		t.Errorf("fragment 2 = %+v", got[2])
	}
	if got[3].Kind != FragmentText || got[3].Content != "more text" {
		t.Errorf("fragment 3 = %+v", got[3])
	}
}

func TestParseFragmentsOnlyAdjacentTextMerges(t *testing.T) {
	table := map[string]emotes.Emote{"Pog": {Name: "Pog"}}
	got := ParseFragments("a b Pog c d", table)
	want := []FragmentKind{FragmentText, FragmentEmote, FragmentText}
	if len(got) != len(want) {
		t.Fatalf("expected %d fragments, got %d: %+v", len(want), len(got), got)
	}
	for i, k := range want {
		if got[i].Kind != k {
			t.Errorf("fragment %d kind = %d, want %d", i, got[i].Kind, k)
		}
	}
	if got[0].Content != "a b" || got[2].Content != "c d" {
		t.Errorf("text merge wrong: %+v", got)
	}
}

func TestParseFragmentsBareDomainIsURL(t *testing.T) {
	got := ParseFragments("see example.com/path for details", nil)
	if len(got) != 3 {
		t.Fatalf("expected 3 fragments, got %+v", got)
	}
	if got[1].Kind != FragmentURL || got[1].Content != "example.com/path" {
		t.Errorf("fragment 1 = %+v", got[1])
	}
}

func TestParseFragmentsURLBeatsEmote(t *testing.T) {
	table := map[string]emotes.Emote{"clip.example.com": {Name: "clip.example.com"}}
	got := ParseFragments("clip.example.com", table)
	if len(got) != 1 || got[0].Kind != FragmentURL {
		t.Errorf("expected URL fragment, got %+v", got)
	}
}

func TestParseFragmentsEmpty(t *testing.T) {
	if got := ParseFragments("   ", nil); len(got) != 0 {
		t.Errorf("expected no fragments, got %+v", got)
	}
}

func TestChatMessageJSONKeys(t *testing.T) {
	msg := ChatMessage{
		Color:    "#FF0000",
		Name:     "Bob",
		FirstMsg: true,
		Fragments: []Fragment{
			{Kind: FragmentText, Content: "hi"},
		},
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	keys := make(map[string]bool)
	for k := range decoded {
		keys[k] = true
	}
	if !reflect.DeepEqual(keys, map[string]bool{"c": true, "n": true, "f": true, "m": true}) {
		t.Errorf("unexpected keys: %v", keys)
	}
	frag := decoded["m"].([]any)[0].(map[string]any)
	if _, ok := frag["e"]; ok {
		t.Error("text fragment should omit emote key")
	}
}
