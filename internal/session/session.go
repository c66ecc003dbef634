// Package session keeps the logged-in agent name in a cookie. It is a label
// for who logged a sale, not an authentication mechanism.
package session

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	CookieName = "iptv_agent"
	maxAge     = 30 * 24 * time.Hour
	maxNameLen = 80
)

// Agent returns the agent stored on r, or "" when nobody is logged in.
func Agent(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	name, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return cleanName(name)
}

// SetAgent stores name on the response. It reports false for a blank name.
func SetAgent(w http.ResponseWriter, r *http.Request, name string) bool {
	name = cleanName(name)
	if name == "" {
		return false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    url.QueryEscape(name),
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return true
}

func Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > maxNameLen {
		name = string(r[:maxNameLen])
	}
	return name
}
