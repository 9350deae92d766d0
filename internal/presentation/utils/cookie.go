package utils

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

const (
	CookieMemberID    = "member_id"
	HeaderMemberToken = "X-Member-Token"

	memberCookieTTL = 24 * time.Hour
)

// GetMemberToken returns the caller's member id, looking at the explicit value
// first, then the X-Member-Token header, then the member_id cookie.
func GetMemberToken(r *http.Request, explicit string) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get(HeaderMemberToken)); id != "" {
		return id
	}
	return getMemberIDFromCookie(r)
}

// SetMemberIDCookie remembers the member id for the room's path so a browser
// can rejoin or leave without echoing it back.
func SetMemberIDCookie(w http.ResponseWriter, roomCode, memberID string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieMemberID,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(memberID)),
		Path:     "/api/rooms/" + roomCode,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(memberCookieTTL),
	})
}

func ClearMemberIDCookie(w http.ResponseWriter, roomCode string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieMemberID,
		Value:    "",
		Path:     "/api/rooms/" + roomCode,
		HttpOnly: true,
		Secure:   secure,
		MaxAge:   -1,
	})
}

func getMemberIDFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(CookieMemberID)
	if err != nil {
		return ""
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return ""
	}
	return string(decoded)
}
