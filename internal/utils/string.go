package utils

import (
	"regexp"
	"strings"
)

var subjectPrefixRegex = regexp.MustCompile(`(?i)^(Re|Fwd|Fw)(\[\d+\])?:\s*`)

// NormalizeEmailSubject strips reply and forward prefixes (Re:, Fwd:, Fw[2]:)
// so threads can be grouped by subject.
func NormalizeEmailSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	for subjectPrefixRegex.MatchString(subject) {
		subject = strings.TrimSpace(subjectPrefixRegex.ReplaceAllString(subject, ""))
	}
	return subject
}

// NormalizeMessageID strips the angle brackets so ids compare equal whether
// they came off the wire or out of the cache.
func NormalizeMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	messageID = strings.TrimPrefix(messageID, "<")
	return strings.TrimSuffix(messageID, ">")
}

// ContainsString reports whether list has an element equal to s.
func ContainsString(s string, list []string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// JoinAddresses renders an address list as a single header value.
func JoinAddresses(addresses []string) string {
	return strings.Join(addresses, ",")
}
