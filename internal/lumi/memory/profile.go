package memory

import "strings"

// declarationPrefixes are the first-person declaration openers that mark a
// message as a self-declared personal fact. Order matters: longer prefixes
// are listed before their shorter variants so "我的名字是" wins over "我的".
var declarationPrefixes = []string{
	"我的名字是",
	"我叫",
	"我是",
	"My name is ",
	"I am ",
	"I'm ",
}

// PrefixDetector is the default ProfileDetector: a message is a
// declaration when it starts with one of a fixed set of first-person
// prefixes. Inherently imprecise, which is why it sits behind the
// ProfileDetector interface.
type PrefixDetector struct{}

// Detect reports whether message opens with a declaration prefix and
// returns the fact text with the prefix stripped. Matching against the
// English prefixes is case-insensitive.
func (PrefixDetector) Detect(message string) (string, bool) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "", false
	}
	for _, prefix := range declarationPrefixes {
		if matched, rest := cutPrefixFold(trimmed, prefix); matched {
			fact := strings.TrimSpace(rest)
			if fact == "" {
				return "", false
			}
			return fact, true
		}
	}
	return "", false
}

// cutPrefixFold is strings.CutPrefix with ASCII case folding, so "i am X"
// and "I am X" both match. The Chinese prefixes contain no ASCII letters
// and are unaffected by the folding.
func cutPrefixFold(s, prefix string) (bool, string) {
	if len(s) < len(prefix) {
		return false, ""
	}
	if strings.EqualFold(s[:len(prefix)], prefix) {
		return true, s[len(prefix):]
	}
	return false, ""
}

// Compile-time interface satisfaction check.
var _ ProfileDetector = PrefixDetector{}
