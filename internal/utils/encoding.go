package utils

import (
	"net/url"
	"strings"
)

// EncodeURIComponent escapes str for a query value, using %20 for spaces.
func EncodeURIComponent(str string) string {
	return strings.ReplaceAll(url.QueryEscape(str), "+", "%20")
}

// WithQuery appends key=value to rawURL, keeping any existing query.
func WithQuery(rawURL, key, value string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + EncodeURIComponent(key) + "=" + EncodeURIComponent(value)
}
