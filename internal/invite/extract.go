package invite

import (
	"sort"
	"strings"
)

// Extract returns the distinct invite candidates found in the rendered
// content and the anchor hrefs, sorted. Matching anchors are kept verbatim,
// scheme-qualified matches in the text are kept verbatim and bare matches
// are given an https:// scheme.
func Extract(content string, hrefs []string) []string {
	found := make(map[string]struct{})
	for _, href := range hrefs {
		if href != "" && Matches(href) {
			found[href] = struct{}{}
		}
	}
	for _, m := range schemeRe.FindAllString(content, -1) {
		found[m] = struct{}{}
	}
	for _, m := range bareRe.FindAllString(content, -1) {
		found[withScheme(m)] = struct{}{}
	}

	out := make([]string, 0, len(found))
	for link := range found {
		out = append(out, link)
	}
	sort.Strings(out)
	return out
}

func withScheme(u string) string {
	u = strings.Trim(strings.TrimSpace(u), `"'`)
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return u
	}
	return "https://" + u
}
