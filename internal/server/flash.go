package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

const (
	flashCookieName = "coursedrop_flash"
	maxFlashes      = 5
)

// Flash is one status message queued for the next page render.
type Flash struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// flashCodec signs flash cookies so a client cannot inject markup or fake
// outcomes into the rendered page.
type flashCodec struct {
	key []byte
}

func newFlashCodec(secret string) *flashCodec {
	return &flashCodec{key: []byte(secret)}
}

func (c *flashCodec) encode(flashes []Flash) (string, error) {
	payload, err := json.Marshal(flashes)
	if err != nil {
		return "", err
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + base64.RawURLEncoding.EncodeToString(c.sign(body)), nil
}

func (c *flashCodec) decode(value string) ([]Flash, bool) {
	body, sig, ok := strings.Cut(value, ".")
	if !ok {
		return nil, false
	}
	gotSig, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(gotSig, c.sign(body)) {
		return nil, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, false
	}
	var flashes []Flash
	if err := json.Unmarshal(payload, &flashes); err != nil {
		return nil, false
	}
	return flashes, true
}

func (c *flashCodec) sign(body string) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(body))
	return mac.Sum(nil)
}

// push appends a flash to any still-pending ones.
func (c *flashCodec) push(w http.ResponseWriter, r *http.Request, flash Flash) error {
	flashes := c.peek(r)
	flashes = append(flashes, flash)
	if len(flashes) > maxFlashes {
		flashes = flashes[len(flashes)-maxFlashes:]
	}
	value, err := c.encode(flashes)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// pop returns pending flashes and clears the cookie.
func (c *flashCodec) pop(w http.ResponseWriter, r *http.Request) []Flash {
	flashes := c.peek(r)
	if _, err := r.Cookie(flashCookieName); err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     flashCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return flashes
}

func (c *flashCodec) peek(r *http.Request) []Flash {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil {
		return nil
	}
	flashes, ok := c.decode(cookie.Value)
	if !ok {
		return nil
	}
	return flashes
}
