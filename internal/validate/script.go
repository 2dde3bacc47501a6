package validate

import "unicode"

// ContainsCyrillic reports whether s has at least one Cyrillic letter.
func ContainsCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

// ContainsLatin reports whether s has at least one Latin letter.
func ContainsLatin(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Latin, r) {
			return true
		}
	}
	return false
}
