package identifier_test

import (
	"strings"
	"testing"

	"vidresolve/internal/identifier"
)

var (
	assetID  = "abc123" + strings.Repeat("Zq9", 12) + "xy"
	uploadID = "upl" + strings.Repeat("Kd7", 13) + "p"
)

func TestClassify(t *testing.T) {
	if len(assetID) != 44 {
		t.Fatalf("fixture asset id should be 44 chars, got %d", len(assetID))
	}
	cases := []struct {
		name   string
		raw    string
		kind   identifier.Kind
		wantID string
	}{
		{"empty", "", identifier.KindUnknown, ""},
		{"whitespace", "   ", identifier.KindUnknown, ""},
		{"short token", "abc123", identifier.KindUnknown, ""},
		{"punctuation", strings.Repeat("a", 40) + "-", identifier.KindUnknown, ""},
		{"asset id", assetID, identifier.KindAssetID, assetID},
		{"asset id padded", "  " + assetID + "\n", identifier.KindAssetID, assetID},
		{"upload id", uploadID, identifier.KindUploadID, uploadID},
		{"short upload prefix", "upl123", identifier.KindUnknown, ""},
		{"canonical url", "https://stream.mux.com/PB1.m3u8", identifier.KindPlaybackID, "PB1"},
		{"legacy mp4 url", "https://stream.mux.com/PB1/high.mp4", identifier.KindPlaybackID, "PB1"},
		{"host without scheme", "stream.mux.com/PB2.m3u8?token=x", identifier.KindPlaybackID, "PB2"},
		{"url wrapping upload id", "https://stream.mux.com/" + uploadID + ".m3u8", identifier.KindUploadID, uploadID},
		{"other host", "https://cdn.example.com/PB1.m3u8", identifier.KindUnknown, ""},
		{"host without id", "https://stream.mux.com/", identifier.KindUnknown, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := identifier.Classify(tc.raw)
			if got.Kind != tc.kind {
				t.Fatalf("Classify(%q) kind = %q, want %q", tc.raw, got.Kind, tc.kind)
			}
			if got.ID != tc.wantID {
				t.Fatalf("Classify(%q) id = %q, want %q", tc.raw, got.ID, tc.wantID)
			}
			if got.Value != tc.raw {
				t.Fatalf("Classify(%q) value = %q, want original", tc.raw, got.Value)
			}
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	inputs := []string{"", assetID, uploadID, "https://stream.mux.com/PB1.m3u8", "???", strings.Repeat("9", 80)}
	for _, raw := range inputs {
		first := identifier.Classify(raw)
		for i := 0; i < 5; i++ {
			if again := identifier.Classify(raw); again != first {
				t.Fatalf("Classify(%q) changed between calls: %#v vs %#v", raw, first, again)
			}
		}
	}
}

func TestCustomRules(t *testing.T) {
	rules := identifier.Rules{
		StreamingHost:   "video.example.net",
		UploadPrefixes:  []string{"UP"},
		MinLongIDLength: 10,
	}
	if got := rules.Classify("UP12345678"); got.Kind != identifier.KindUploadID {
		t.Fatalf("expected upload id with custom prefix, got %q", got.Kind)
	}
	if got := rules.Classify("AB12345678"); got.Kind != identifier.KindAssetID {
		t.Fatalf("expected asset id with custom length, got %q", got.Kind)
	}
	if got := rules.Classify("https://video.example.net/abc.m3u8"); got.Kind != identifier.KindPlaybackID {
		t.Fatalf("expected playback id on custom host, got %q", got.Kind)
	}
	if want := "https://video.example.net/abc.m3u8"; rules.PlaybackURL("abc") != want {
		t.Fatalf("PlaybackURL = %q, want %q", rules.PlaybackURL("abc"), want)
	}
	if rules.ThumbnailURL("abc") != "" {
		t.Fatalf("expected empty thumbnail without template, got %q", rules.ThumbnailURL("abc"))
	}
}

func TestIsCanonicalURL(t *testing.T) {
	rules := identifier.DefaultRules()
	cases := []struct {
		value string
		want  bool
	}{
		{"https://stream.mux.com/PB1.m3u8", true},
		{"https://stream.mux.com/PB1.mp4", false},
		{"https://stream.mux.com/PB1/high.mp4", false},
		{"http://stream.mux.com/PB1.m3u8", false},
		{"https://stream.mux.com/PB1.m3u8?redundant=1", false},
		{"https://cdn.example.com/PB1.m3u8", false},
		{"https://stream.mux.com/" + uploadID + ".m3u8", false},
		{"https://stream.mux.com/" + assetID + ".m3u8", true},
		{"", false},
	}
	for _, tc := range cases {
		if got := rules.IsCanonicalURL(tc.value); got != tc.want {
			t.Errorf("IsCanonicalURL(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestEmbeddedID(t *testing.T) {
	rules := identifier.DefaultRules()
	cases := []struct {
		value string
		id    string
		ok    bool
	}{
		{"https://stream.mux.com/PB1.mp4", "PB1", true},
		{"https://stream.mux.com/PB1/low.mp4", "PB1", true},
		{"https://cdn.example.com/videos/" + assetID + ".mp4", assetID, true},
		{"https://cdn.example.com/videos/short.mp4", "", false},
		{"not a url", "", false},
	}
	for _, tc := range cases {
		id, ok := rules.EmbeddedID(tc.value)
		if id != tc.id || ok != tc.ok {
			t.Errorf("EmbeddedID(%q) = (%q, %v), want (%q, %v)", tc.value, id, ok, tc.id, tc.ok)
		}
	}
}

func TestPlaybackAndThumbnailURL(t *testing.T) {
	rules := identifier.DefaultRules()
	if got := rules.PlaybackURL("PB1"); got != "https://stream.mux.com/PB1.m3u8" {
		t.Fatalf("unexpected playback url %q", got)
	}
	if got := rules.ThumbnailURL("PB1"); got != "https://image.mux.com/PB1/thumbnail.jpg" {
		t.Fatalf("unexpected thumbnail url %q", got)
	}
}
