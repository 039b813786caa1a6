package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var sanitizer = bluemonday.StrictPolicy()

// Sanitize strips markup from client supplied text before it reaches logs.
// The result stays HTML escaped.
func Sanitize(input string) string {
	return strings.TrimSpace(sanitizer.Sanitize(input))
}
