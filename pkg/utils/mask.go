package utils

import (
	"net/url"
	"strings"
)

// MaskSecret keeps the first and last four characters of s and hides the rest.
// Values of eight characters or fewer are fully hidden.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***" + s[len(s)-4:]
}

// MaskURL hides the password component of an endpoint URL, if any.
// Inputs that do not parse are returned unchanged.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); !ok {
		return raw
	}
	u.User = url.UserPassword(u.User.Username(), "xxx")
	return strings.Replace(u.String(), ":xxx@", ":***@", 1)
}
