package internal

import "strings"

// SanitizeString strips line breaks from user-supplied values before they
// reach the logs, so a crafted input cannot forge log entries.
func SanitizeString(input string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(input)
}
