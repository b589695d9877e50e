package middleware

import (
	"net/http"
	"time"

	"github.com/MrEthical07/accounts"
)

// CookieOptions are the attributes of every session cookie. MaxAge should
// cover the refresh lifetime for both cookies: an expired access token must
// still reach the server for a silent refresh. Zero MaxAge makes browser
// session cookies.
type CookieOptions struct {
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// DefaultCookieOptions returns HttpOnly, Secure, SameSite=Lax cookies scoped
// to "/".
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{
		Path:     "/",
		Secure:   true,
		HTTPOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// HTTPCookies is an accounts.CookieWriter over an http.ResponseWriter. It
// belongs to one request and is not safe for concurrent use.
type HTTPCookies struct {
	w    http.ResponseWriter
	opts CookieOptions
	set  map[string]string
}

// NewHTTPCookies returns a writer that adds Set-Cookie headers to w with
// the attributes in opts. An empty opts.Path becomes "/". Headers must be
// written before the response body, so hand the writer to the engine before
// calling w.WriteHeader.
func NewHTTPCookies(w http.ResponseWriter, opts CookieOptions) *HTTPCookies {
	if opts.Path == "" {
		opts.Path = "/"
	}
	return &HTTPCookies{w: w, opts: opts}
}

// SetCookie adds a Set-Cookie header for name=value and records the value
// for [HTTPCookies.Written]. Max-Age is set only when opts.MaxAge is positive.
func (c *HTTPCookies) SetCookie(name, value string) {
	ck := c.base(name)
	ck.Value = value
	if c.set == nil {
		c.set = map[string]string{}
	}
	c.set[name] = value
	if c.opts.MaxAge > 0 {
		ck.MaxAge = int(c.opts.MaxAge / time.Second)
	}
	http.SetCookie(c.w, ck)
}

// ClearCookie expires name in the client with Max-Age=-1 and a zero-epoch
// Expires, using the same Path and Domain it was set with. Written reports
// the cleared name with an empty value.
func (c *HTTPCookies) ClearCookie(name string) {
	if c.set == nil {
		c.set = map[string]string{}
	}
	c.set[name] = ""
	ck := c.base(name)
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0)
	http.SetCookie(c.w, ck)
}

func (c *HTTPCookies) base(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Path:     c.opts.Path,
		Domain:   c.opts.Domain,
		Secure:   c.opts.Secure,
		HttpOnly: c.opts.HTTPOnly,
		SameSite: c.opts.SameSite,
	}
}

// Written returns the values set so far, keyed by cookie name.
func (c *HTTPCookies) Written() map[string]string {
	return c.set
}

// withCookieValues returns r with the named request cookies replaced, so
// handlers behind the guard see the tokens the client will hold next.
func withCookieValues(r *http.Request, values map[string]string) *http.Request {
	if len(values) == 0 {
		return r
	}
	cookies := r.Cookies()
	seen := map[string]bool{}
	for _, ck := range cookies {
		if v, ok := values[ck.Name]; ok {
			ck.Value = v
			seen[ck.Name] = true
		}
	}
	for name, v := range values {
		if !seen[name] {
			cookies = append(cookies, &http.Cookie{Name: name, Value: v})
		}
	}

	out := r.Clone(r.Context())
	out.Header.Del("Cookie")
	for _, ck := range cookies {
		out.AddCookie(ck)
	}
	return out
}

// TokensFromRequest reads the session cookie pair. Missing cookies yield
// empty fields.
func TokensFromRequest(r *http.Request, accessName, refreshName string) accounts.TokenPair {
	var tokens accounts.TokenPair
	if ck, err := r.Cookie(accessName); err == nil {
		tokens.AccessToken = ck.Value
	}
	if ck, err := r.Cookie(refreshName); err == nil {
		tokens.RefreshToken = ck.Value
	}
	return tokens
}
