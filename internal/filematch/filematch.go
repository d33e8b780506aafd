// Package filematch implements the name/size comparison and privacy-hashing
// rules shared by the media index, the sync controller's file-difference
// warnings, and the autoplay readiness predicate.
package filematch

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

// HiddenFilename is substituted for a filename under the DoNotSend privacy
// mode. It compares equal to every other filename via Same.
const HiddenFilename = "**Hidden filename**"

// PrivacyMode selects how a filename or filesize is sent to the server.
type PrivacyMode int

const (
	SendRaw PrivacyMode = iota
	SendHashed
	DoNotSend
)

var stripRegexp = regexp.MustCompile(`[-~_.\[\]() :]`)

// IsURL reports whether value parses as an absolute URL containing "://".
func IsURL(value string) bool {
	if !strings.Contains(value, "://") {
		return false
	}
	_, err := url.Parse(value)
	return err == nil
}

// Strip removes punctuation that commonly differs between otherwise
// identical filenames (separators, brackets, parens) and, when stripURL is
// true or the value is itself a URL, first reduces it to its final path
// segment.
func Strip(filename string, stripURL bool) string {
	base := filename
	if stripURL || IsURL(filename) {
		if u, err := url.Parse(filename); err == nil {
			segments := strings.Split(strings.TrimSuffix(u.Path, "/"), "/")
			if last := segments[len(segments)-1]; last != "" {
				base = last
			}
		}
	}
	return stripRegexp.ReplaceAllString(base, "")
}

// Hash returns the first 12 hex characters of the SHA-256 digest of the
// stripped filename.
func Hash(filename string, stripURL bool) string {
	stripped := Strip(filename, stripURL)
	sum := sha256.Sum256([]byte(stripped))
	return hex.EncodeToString(sum[:])[:12]
}

// HashSize returns the first 12 hex characters of the SHA-256 digest of the
// decimal representation of size.
func HashSize(size uint64) string {
	sum := sha256.Sum256([]byte(uintToString(size)))
	return hex.EncodeToString(sum[:])[:12]
}

func uintToString(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// Same reports whether a and b identify the same underlying file, honoring
// the hidden-filename marker and stripped/hashed cross-matches: a filename
// is considered equal to its own hash, and to the hash of the other name
// when one of the two sides is a URL and the other is not (forcing
// URL-to-segment stripping on both before comparing).
func Same(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == HiddenFilename || b == HiddenFilename {
		return true
	}
	if strings.EqualFold(a, b) {
		return true
	}

	stripURL := IsURL(a) != IsURL(b)
	aStripped := Strip(a, stripURL)
	bStripped := Strip(b, stripURL)
	if aStripped == bStripped {
		return true
	}

	aHash := Hash(a, stripURL)
	bHash := Hash(b, stripURL)
	return aStripped == bHash || aHash == bStripped || aHash == bHash
}

// FileSize is either a raw byte count or an opaque hashed token, matching
// the two representations the wire protocol allows for a file's size.
type FileSize struct {
	Number uint64
	Text   string
	IsText bool
}

// SameSize reports whether a and b identify the same file size, treating
// a zero raw size (used for DoNotSend) as a wildcard that matches anything.
func SameSize(a, b *FileSize) bool {
	if a == nil || b == nil {
		return false
	}
	if !a.IsText && !b.IsText {
		if a.Number == 0 || b.Number == 0 {
			return true
		}
		if a.Number == b.Number {
			return true
		}
	}
	aHash := a.Text
	if !a.IsText {
		aHash = HashSize(a.Number)
	}
	bHash := b.Text
	if !b.IsText {
		bHash = HashSize(b.Number)
	}
	if aHash == "" || bHash == "" {
		return false
	}
	return aHash == bHash
}

// ApplyPrivacy redacts filename/size according to the given privacy modes,
// matching the wire representation the server expects for each mode.
func ApplyPrivacy(filename string, hasFilename bool, size uint64, hasSize bool, filenameMode, sizeMode PrivacyMode) (outName string, hasName bool, outSize FileSize, has bool) {
	if hasFilename {
		hasName = true
		switch filenameMode {
		case SendRaw:
			outName = filename
		case SendHashed:
			outName = Hash(filename, true)
		case DoNotSend:
			outName = HiddenFilename
		}
	}
	if hasSize {
		has = true
		switch sizeMode {
		case SendRaw:
			outSize = FileSize{Number: size}
		case SendHashed:
			outSize = FileSize{Text: HashSize(size), IsText: true}
		case DoNotSend:
			outSize = FileSize{Number: 0}
		}
	}
	return
}

// TrustedDomain describes one entry of a trusted-domain allowlist: a host
// (optionally containing a single '*' wildcard label) and an optional path
// prefix restricting the match further.
type TrustedDomain struct {
	Domain string
	Path   string
}

// IsTrustableAndTrusted classifies a loaded "file" that is actually a URL.
// trustable reports whether the scheme is http/https at all; trusted
// reports whether, given onlyTrusted, the host (and optional path) also
// matches an entry in domains.
func IsTrustableAndTrusted(value string, domains []TrustedDomain, onlyTrusted bool) (trustable, trusted bool) {
	u, err := url.Parse(value)
	if err != nil {
		return false, false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false, false
	}
	if !onlyTrusted {
		return true, true
	}
	host := u.Hostname()
	if host == "" {
		return true, false
	}
	for _, d := range domains {
		domain := strings.TrimSpace(d.Domain)
		if domain == "" {
			continue
		}
		if !domainMatches(host, domain) {
			continue
		}
		path := strings.TrimSpace(d.Path)
		if path == "" {
			return true, true
		}
		if strings.HasPrefix(u.Path, "/"+path) {
			return true, true
		}
	}
	return true, false
}

func domainMatches(host, domain string) bool {
	if strings.Contains(domain, "*") {
		pattern := "^" + strings.ReplaceAll(regexp.QuoteMeta(domain), `\*`, "([^.]+)") + "$"
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(host)
	}
	return strings.EqualFold(host, domain) || strings.EqualFold(host, "www."+domain)
}

var controlledRoomHashRegexp = regexp.MustCompile(`^[A-Za-z0-9_]{12}$`)

// StripControlPassword normalizes a controller password as typed by the
// user: only ASCII letters, digits and hyphens survive, and the result is
// uppercased.
func StripControlPassword(value string) string {
	var b strings.Builder
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.ToUpper(b.String())
}

// ParseControlledRoomInput splits a user-entered room string of the form
// "+name:HASH:PASSWORD" into the normalized room ("+name:HASH") and the
// extracted password. A bare "+name:HASH" (no third colon-separated part)
// has no password to extract and is returned unchanged; anything not
// starting with '+' is returned unchanged with no password.
func ParseControlledRoomInput(room string) (normalizedRoom string, password string, hasPassword bool) {
	if !strings.HasPrefix(room, "+") {
		return room, "", false
	}
	parts := strings.Split(room, ":")
	if len(parts) < 3 {
		return room, "", false
	}
	normalized := parts[0] + ":" + parts[1]
	stripped := StripControlPassword(parts[2])
	if stripped == "" {
		return normalized, "", false
	}
	return normalized, stripped, true
}

// IsControlledRoom reports whether room is already in the canonical
// managed form: "+name:HASH" where HASH is exactly 12 ASCII alphanumeric
// or underscore characters.
func IsControlledRoom(room string) bool {
	if !strings.HasPrefix(room, "+") {
		return false
	}
	parts := strings.Split(room, ":")
	if len(parts) != 2 {
		return false
	}
	return controlledRoomHashRegexp.MatchString(parts[1])
}
