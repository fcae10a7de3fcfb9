// Package invite recognizes, extracts and normalizes Discord invite links.
package invite

import (
	"regexp"
	"strings"
)

// Rank orders shapes by display preference. Lower ranks win.
type Rank int

// Shape ranks used by PickPrimary.
const (
	RankPrimary Rank = iota
	RankLegacy
	RankOther
)

// CanonicalHost is the host every canonical invite is rewritten to.
const CanonicalHost = "discord.gg"

// Shape describes one accepted invite host/path combination.
type Shape struct {
	// Prefix is the lowercase host and path that precedes the invite code.
	Prefix string
	// Rank is the display preference of links found in this shape.
	Rank Rank
}

// Shapes is the table of accepted invite shapes. Adding an entry here is
// enough to teach both the extractor and the normalizer a new spelling.
var Shapes = []Shape{
	{Prefix: "discord.gg/", Rank: RankPrimary},
	{Prefix: "discord.com/invite/", Rank: RankLegacy},
	{Prefix: "discordapp.com/invite/", Rank: RankOther},
}

// codeClass is the character class accepted for invite codes in free text.
const codeClass = `[A-Za-z0-9-]+`

var (
	schemeRe = compileShapes(`(?i)\bhttps?://(?:www\.)?(?:%s)`)
	bareRe   = compileShapes(`(?i)\b(?:%s)\b`)
	markers  = buildMarkers()
)

func compileShapes(format string) *regexp.Regexp {
	alts := make([]string, 0, len(Shapes))
	for _, s := range Shapes {
		alts = append(alts, regexp.QuoteMeta(s.Prefix)+codeClass)
	}
	return regexp.MustCompile(strings.Replace(format, "%s", strings.Join(alts, "|"), 1))
}

func buildMarkers() []string {
	out := make([]string, 0, len(Shapes))
	for _, s := range Shapes {
		out = append(out, strings.TrimSuffix(s.Prefix, "/"))
	}
	return out
}

// shapeFor returns the shape whose prefix starts the lowercase string.
func shapeFor(lower string) (Shape, bool) {
	for _, s := range Shapes {
		if strings.HasPrefix(lower, s.Prefix) {
			return s, true
		}
	}
	return Shape{}, false
}

// ContainsMarker reports whether content mentions any invite host, ignoring case.
func ContainsMarker(content string) bool {
	if content == "" {
		return false
	}
	lower := strings.ToLower(content)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Matches reports whether s contains an invite link in any accepted shape.
func Matches(s string) bool {
	return schemeRe.MatchString(s) || bareRe.MatchString(s)
}
