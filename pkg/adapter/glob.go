package adapter

import (
	"path"
	"strings"
)

// globMatch reports whether the slash-separated relative path rel matches
// pattern. Matching is component-wise: "*" and "?" stay within a component,
// "**" matches zero or more whole components.
func globMatch(pattern, rel string) bool {
	return matchComponents(strings.Split(pattern, "/"), strings.Split(rel, "/"))
}

func matchComponents(pat, parts []string) bool {
	if len(pat) == 0 {
		return len(parts) == 0
	}
	if pat[0] == "**" {
		// "**" may swallow any number of leading components.
		for skip := 0; skip <= len(parts); skip++ {
			if matchComponents(pat[1:], parts[skip:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	ok, err := path.Match(pat[0], parts[0])
	if err != nil || !ok {
		return false
	}
	return matchComponents(pat[1:], parts[1:])
}

// globIgnored reports whether rel matches any ignore pattern, either
// directly or because an ancestor directory does.
func globIgnored(ignore []string, rel string) bool {
	for _, pat := range ignore {
		if globMatch(pat, rel) {
			return true
		}
		for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
			if globMatch(pat, dir) {
				return true
			}
		}
	}
	return false
}
