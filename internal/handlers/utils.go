// internal/handlers/utils.go
package handlers

import "net/http"

// extractCookieToken returns the value of cookieName from a raw Cookie header,
// or "" if it is not present. Names must match exactly, so "xauth_token" never
// satisfies "auth_token".
func extractCookieToken(cookieHeader, cookieName string) string {
	if cookieHeader == "" {
		return ""
	}
	req := http.Request{Header: http.Header{"Cookie": []string{cookieHeader}}}
	c, err := req.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
