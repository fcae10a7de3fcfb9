package invite

import (
	"sort"
	"strings"
)

const trailingPunct = ")]},.;!'\"`"

// Canonicalize rewrites a raw candidate to its discord.gg/<code> form.
// It returns false when the string is not a recognizable invite.
func Canonicalize(raw string) (string, bool) {
	c, ok := canonicalize(raw)
	return c.link, ok
}

type canonical struct {
	link string
	rank Rank
}

func canonicalize(raw string) (canonical, bool) {
	u := strings.Trim(strings.TrimSpace(raw), `"'`)
	u = strings.TrimRight(u, trailingPunct)
	u = trimScheme(u)
	u = trimPrefixFold(u, "www.")

	shape, ok := shapeFor(strings.ToLower(u))
	if !ok {
		return canonical{}, false
	}
	code := u[strings.LastIndex(u, "/")+1:]
	if code == "" {
		return canonical{}, false
	}
	return canonical{link: CanonicalHost + "/" + code, rank: shape.Rank}, true
}

// trimScheme strips at most one leading http or https scheme.
func trimScheme(s string) string {
	if t := trimPrefixFold(s, "https://"); len(t) != len(s) {
		return t
	}
	return trimPrefixFold(s, "http://")
}

func trimPrefixFold(s, prefix string) string {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):]
	}
	return s
}

// Dedupe canonicalizes urls, drops anything unrecognized and removes
// case-insensitive duplicates, keeping first-seen order.
func Dedupe(urls []string) []string {
	ranked := dedupe(urls)
	out := make([]string, len(ranked))
	for i, c := range ranked {
		out[i] = c.link
	}
	return out
}

func dedupe(urls []string) []canonical {
	seen := make(map[string]struct{}, len(urls))
	out := make([]canonical, 0, len(urls))
	for _, raw := range urls {
		c, ok := canonicalize(raw)
		if !ok {
			continue
		}
		key := strings.ToLower(c.link)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// PickPrimary returns the preferred invite for display and the number of
// other distinct invites. Invites found on the primary domain come first,
// then the legacy invite path, then anything else.
func PickPrimary(urls []string) (string, int, bool) {
	ranked := dedupe(urls)
	if len(ranked) == 0 {
		return "", 0, false
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].rank < ranked[j].rank })
	return ranked[0].link, len(ranked) - 1, true
}
