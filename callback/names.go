package callback

import (
	"strings"
	"unicode"
)

// toKebabCase converts PascalCase or camelCase to kebab-case.
// Handles acronyms: GetHTTPServer -> get-http-server. Underscores and
// existing dashes become single dashes.
func toKebabCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case r == '_' || r == '-' || r == ' ':
			if result.Len() > 0 && !strings.HasSuffix(result.String(), "-") {
				result.WriteByte('-')
			}

		case unicode.IsUpper(r):
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word, not part of acronym
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			if result.Len() > 0 && !strings.HasSuffix(result.String(), "-") {
				result.WriteByte('-')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1 // -1 because loop will increment

		default:
			result.WriteRune(r)
		}
	}
	return strings.TrimSuffix(result.String(), "-")
}

// localName strips the package and version from an interface identity:
// "cis:progress-observer@1.0" -> "progress-observer".
func localName(iface string) string {
	if i := strings.LastIndexAny(iface, ":/"); i >= 0 {
		iface = iface[i+1:]
	}
	if i := strings.IndexByte(iface, '@'); i >= 0 {
		iface = iface[:i]
	}
	return iface
}

// methodCandidates lists the normalized host method names that may
// implement member, in lookup order.
func methodCandidates(iface, member string) []string {
	m := toKebabCase(member)
	return []string{m, toKebabCase(localName(iface)) + "-" + m}
}

func getterCandidates(iface, member string) []string {
	m := toKebabCase(member)
	return []string{m, "get-" + m, toKebabCase(localName(iface)) + "-" + m}
}

func setterCandidates(iface, member string) []string {
	m := toKebabCase(member)
	return []string{"set-" + m, toKebabCase(localName(iface)) + "-set-" + m}
}
