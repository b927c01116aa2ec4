package wake_test

import (
	"testing"

	"github.com/MrWong99/zentra/internal/wake"
)

func TestMatcher_Match(t *testing.T) {
	t.Parallel()

	m := wake.New("Zentra")
	tests := []struct {
		name          string
		text          string
		wantMatched   bool
		wantRemainder string
		wantDistance  int
	}{
		{name: "exact", text: "zentra", wantMatched: true, wantDistance: 0},
		{name: "case insensitive", text: "ZENTRA.", wantMatched: true, wantDistance: 0},
		{name: "one edit", text: "zentrra", wantMatched: true, wantDistance: 1},
		{name: "two edits", text: "sentro", wantMatched: true, wantDistance: 2},
		{name: "too far", text: "xyz", wantMatched: false},
		{name: "no wake word", text: "hello", wantMatched: false},
		{name: "empty", text: "", wantMatched: false},
		{name: "command tail", text: "zentra light on", wantMatched: true, wantRemainder: "light on"},
		{name: "punctuation after token", text: "Zentra, turn the light off.", wantMatched: true, wantRemainder: "turn the light off."},
		{name: "token mid sentence", text: "hey zentra stop", wantMatched: true, wantRemainder: "stop"},
		{name: "remainder keeps case", text: "zentra Play Music", wantMatched: true, wantRemainder: "Play Music"},
		{name: "trailing punctuation only", text: "Zentra!", wantMatched: true, wantRemainder: ""},
		{name: "accented letter splits tokens", text: "zéntra lumière", wantMatched: true, wantRemainder: "lumière", wantDistance: 2},
		{name: "accented prefix is a separator", text: "ézentra allume", wantMatched: true, wantRemainder: "allume"},
		{name: "accented remainder kept", text: "hé zentra allumé", wantMatched: true, wantRemainder: "allumé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := m.Match(tt.text)
			if got.Matched != tt.wantMatched {
				t.Fatalf("Match(%q).Matched: got %v, want %v", tt.text, got.Matched, tt.wantMatched)
			}
			if got.Remainder != tt.wantRemainder {
				t.Errorf("Match(%q).Remainder: got %q, want %q", tt.text, got.Remainder, tt.wantRemainder)
			}
			if tt.wantMatched && got.Distance != tt.wantDistance {
				t.Errorf("Match(%q).Distance: got %d, want %d", tt.text, got.Distance, tt.wantDistance)
			}
		})
	}
}

func TestMatcher_FirstTokenWins(t *testing.T) {
	t.Parallel()

	// "zentro" (distance 1) precedes the exact token.
	got := wake.New("zentra").Match("zentro zentra lights")
	if got.Token != "zentro" || got.Distance != 1 {
		t.Errorf("got token %q distance %d, want zentro/1", got.Token, got.Distance)
	}
	if got.Remainder != "zentra lights" {
		t.Errorf("remainder: got %q", got.Remainder)
	}
}

func TestMatcher_MaxDistance(t *testing.T) {
	t.Parallel()

	m := wake.New("zentra", wake.WithMaxDistance(0))
	if m.Match("zentrra").Matched {
		t.Error("distance 1 matched with max distance 0")
	}
	if !m.Match("zentra").Matched {
		t.Error("exact token did not match")
	}
}

func TestTextAfterWord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{text: "zentra light on", want: "light on", wantOK: true},
		{text: "Hey Zentra: stop", want: "stop", wantOK: true},
		{text: "zentrra light on", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := wake.TextAfterWord(tt.text, "zentra")
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("TextAfterWord(%q): got (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestStrict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want wake.StrictMatch
	}{
		{text: "Zentra lights", want: wake.StrictMatch{FirstWord: true, Contains: true}},
		{text: "ok zentra", want: wake.StrictMatch{Contains: true}},
		{text: "zentrra lights", want: wake.StrictMatch{}},
	}
	for _, tt := range tests {
		if got := wake.Strict(tt.text, "zentra"); got != tt.want {
			t.Errorf("Strict(%q): got %+v, want %+v", tt.text, got, tt.want)
		}
	}
}

func TestSoundTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text      string
		wantStrip string
		wantTag   bool
	}{
		{text: "(breathing)", wantStrip: "", wantTag: true},
		{text: "[noise] (laughs)", wantStrip: "", wantTag: true},
		{text: "zentra (coughs) lights on", wantStrip: "zentra   lights on", wantTag: false},
		{text: "lights on", wantStrip: "lights on", wantTag: false},
		{text: "  ", wantStrip: "", wantTag: false},
	}
	for _, tt := range tests {
		if got := wake.StripSoundTags(tt.text); got != tt.wantStrip {
			t.Errorf("StripSoundTags(%q): got %q, want %q", tt.text, got, tt.wantStrip)
		}
		if got := wake.IsSoundTag(tt.text); got != tt.wantTag {
			t.Errorf("IsSoundTag(%q): got %v, want %v", tt.text, got, tt.wantTag)
		}
	}
}
