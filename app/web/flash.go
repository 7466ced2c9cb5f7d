package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"

	log "github.com/go-pkgz/lgr"
)

// flashLevel is the severity of a flash message
type flashLevel string

const (
	flashInfo    flashLevel = "info"
	flashSuccess flashLevel = "success"
	flashError   flashLevel = "error"
)

// flashMessage is a one-shot status message carried across a redirect
// and displayed once on the next rendered page
type flashMessage struct {
	Level flashLevel
	Text  string
}

const flashCookie = "gymlog-flash"

// setFlash attaches a signed one-shot message cookie to the response.
// Payload is "level|text" base64-encoded, followed by an HMAC signature.
func (s *Server) setFlash(w http.ResponseWriter, level flashLevel, text string) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(string(level) + "|" + text))
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    payload + "." + s.signFlash(payload),
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash consumes the flash cookie: the cookie is cleared whether or not
// it verifies, a message is returned only for a valid signature
func (s *Server) popFlash(w http.ResponseWriter, r *http.Request) *flashMessage {
	cookie, err := r.Cookie(flashCookie)
	if err != nil {
		return nil
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // delete cookie
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	payload, sig, ok := strings.Cut(cookie.Value, ".")
	if !ok {
		return nil
	}
	if !hmac.Equal([]byte(sig), []byte(s.signFlash(payload))) {
		log.Printf("[WARN] flash cookie signature mismatch, dropping")
		return nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		log.Printf("[WARN] failed to decode flash cookie: %v", err)
		return nil
	}
	levelStr, text, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil
	}

	level := flashLevel(levelStr)
	switch level {
	case flashInfo, flashSuccess, flashError:
	default:
		level = flashInfo
	}
	return &flashMessage{Level: level, Text: text}
}

// redirectWithFlash enqueues a flash message and issues a 303 redirect
func (s *Server) redirectWithFlash(w http.ResponseWriter, r *http.Request, url string, level flashLevel, text string) {
	s.setFlash(w, level, text)
	http.Redirect(w, r, url, http.StatusSeeOther)
}

func (s *Server) signFlash(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
