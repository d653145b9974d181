package onebot

import (
	"regexp"
	"strings"
)

var cqCodeRe = regexp.MustCompile(`\[CQ:[^\]]+\]`)

// ExtractPlainText strips CQ codes from a raw message and unescapes the
// remaining text.
func ExtractPlainText(raw string) string {
	text := cqCodeRe.ReplaceAllString(raw, "")
	return strings.TrimSpace(Unescape(text))
}

// MentionsUser checks whether the raw message @-mentions the given user.
// An at-all segment mentions everyone, the bot included.
func MentionsUser(raw, userID string) bool {
	if strings.Contains(raw, "[CQ:at,qq=all]") || strings.Contains(raw, "[CQ:at,qq=all,") {
		return true
	}
	if userID == "" {
		return false
	}
	return strings.Contains(raw, "[CQ:at,qq="+userID+"]") ||
		strings.Contains(raw, "[CQ:at,qq="+userID+",")
}

// Unescape decodes OneBot text entities
func Unescape(s string) string {
	s = strings.ReplaceAll(s, "&#91;", "[")
	s = strings.ReplaceAll(s, "&#93;", "]")
	s = strings.ReplaceAll(s, "&#44;", ",")
	return strings.ReplaceAll(s, "&amp;", "&")
}

// Escape encodes text for embedding in a OneBot message
func Escape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "[", "&#91;")
	return strings.ReplaceAll(s, "]", "&#93;")
}
