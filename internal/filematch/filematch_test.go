package filematch_test

import (
	"testing"

	"github.com/watchtogether/syncclient/internal/filematch"
)

func TestSameExactAndCaseInsensitive(t *testing.T) {
	if !filematch.Same("Movie.mkv", "movie.mkv") {
		t.Error("expected case-insensitive match")
	}
	if filematch.Same("", "movie.mkv") {
		t.Error("expected empty filename to never match")
	}
}

func TestSameHiddenFilenameAlwaysMatches(t *testing.T) {
	if !filematch.Same(filematch.HiddenFilename, "anything.mkv") {
		t.Error("expected hidden filename to match anything")
	}
}

func TestSameStrippedPunctuation(t *testing.T) {
	if !filematch.Same("Movie.Name-2020.mkv", "Movie Name 2020.mkv") {
		t.Error("expected punctuation-stripped names to match")
	}
}

func TestSameHashVsRaw(t *testing.T) {
	raw := "Movie.Name.2020.mkv"
	hashed := filematch.Hash(raw, true)
	if !filematch.Same(raw, hashed) {
		t.Error("expected a raw filename to match its own hash")
	}
}

func TestSameURLVsLocalPath(t *testing.T) {
	if !filematch.Same("http://example.com/videos/Movie.mkv", "Movie.mkv") {
		t.Error("expected URL path segment to match the bare filename")
	}
}

func TestSameSizeWildcardOnZero(t *testing.T) {
	a := &filematch.FileSize{Number: 0}
	b := &filematch.FileSize{Number: 12345}
	if !filematch.SameSize(a, b) {
		t.Error("expected zero size to act as a wildcard")
	}
}

func TestSameSizeHashedVsRaw(t *testing.T) {
	a := &filematch.FileSize{Number: 700}
	b := &filematch.FileSize{Text: filematch.HashSize(700), IsText: true}
	if !filematch.SameSize(a, b) {
		t.Error("expected a raw size to match its own hash")
	}
}

func TestApplyPrivacyModes(t *testing.T) {
	name, hasName, size, hasSize := filematch.ApplyPrivacy("movie.mkv", true, 700, true, filematch.SendRaw, filematch.SendRaw)
	if !hasName || name != "movie.mkv" || !hasSize || size.Number != 700 {
		t.Errorf("unexpected raw privacy output: %q %+v", name, size)
	}

	name, _, size, _ = filematch.ApplyPrivacy("movie.mkv", true, 700, true, filematch.SendHashed, filematch.SendHashed)
	if name != filematch.Hash("movie.mkv", true) || !size.IsText || size.Text != filematch.HashSize(700) {
		t.Errorf("unexpected hashed privacy output: %q %+v", name, size)
	}

	name, _, size, _ = filematch.ApplyPrivacy("movie.mkv", true, 700, true, filematch.DoNotSend, filematch.DoNotSend)
	if name != filematch.HiddenFilename || size.Number != 0 {
		t.Errorf("unexpected do-not-send privacy output: %q %+v", name, size)
	}
}

func TestIsTrustableAndTrustedWildcardDomain(t *testing.T) {
	domains := []filematch.TrustedDomain{{Domain: "*.example.com"}}

	trustable, trusted := filematch.IsTrustableAndTrusted("https://cdn.example.com/a.mkv", domains, true)
	if !trustable || !trusted {
		t.Error("expected wildcard subdomain to be trusted")
	}

	trustable, trusted = filematch.IsTrustableAndTrusted("https://evil.com/a.mkv", domains, true)
	if !trustable || trusted {
		t.Error("expected non-matching host to be untrusted but still trustable")
	}

	trustable, _ = filematch.IsTrustableAndTrusted("not a url", domains, true)
	if trustable {
		t.Error("expected a non-http(s) value to be untrustable")
	}
}

func TestParseControlledRoomInputSplitsPassword(t *testing.T) {
	room, password, ok := filematch.ParseControlledRoomInput("+movienight:abc123DEF456:hunter-2")
	if !ok || room != "+movienight:abc123DEF456" || password != "HUNTER-2" {
		t.Errorf("unexpected parse result: room=%q password=%q ok=%v", room, password, ok)
	}
}

func TestParseControlledRoomInputBareHashHasNoPassword(t *testing.T) {
	room, password, ok := filematch.ParseControlledRoomInput("+movienight:abc123DEF456")
	if ok || password != "" || room != "+movienight:abc123DEF456" {
		t.Errorf("unexpected parse result: room=%q password=%q ok=%v", room, password, ok)
	}
}

func TestParseControlledRoomInputLeavesPlainRoomUnchanged(t *testing.T) {
	room, _, ok := filematch.ParseControlledRoomInput("movienight")
	if ok || room != "movienight" {
		t.Errorf("unexpected parse result: room=%q ok=%v", room, ok)
	}
}

func TestIsControlledRoom(t *testing.T) {
	if !filematch.IsControlledRoom("+movienight:abc123DEF456") {
		t.Error("expected a 12-char alphanumeric hash to be recognized as controlled")
	}
	if filematch.IsControlledRoom("+movienight:tooshort") {
		t.Error("expected a short hash to be rejected")
	}
	if filematch.IsControlledRoom("movienight") {
		t.Error("expected a plain room name to be rejected")
	}
}

func TestStripControlPasswordNormalizes(t *testing.T) {
	if got := filematch.StripControlPassword("hunter-2!! "); got != "HUNTER-2" {
		t.Errorf("unexpected normalization: %q", got)
	}
}

func TestIsTrustableAndTrustedPathPrefix(t *testing.T) {
	domains := []filematch.TrustedDomain{{Domain: "example.com", Path: "videos"}}

	_, trusted := filematch.IsTrustableAndTrusted("https://example.com/videos/a.mkv", domains, true)
	if !trusted {
		t.Error("expected matching path prefix to be trusted")
	}
	_, trusted = filematch.IsTrustableAndTrusted("https://example.com/other/a.mkv", domains, true)
	if trusted {
		t.Error("expected non-matching path prefix to be untrusted")
	}
}
