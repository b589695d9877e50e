package accounts

import "sync"

const (
	DefaultAccessCookieName  = "X-ACCESS-TOKEN"
	DefaultRefreshCookieName = "X-REFRESH-TOKEN"
)

// CookieWriter receives the cookie mutations produced by Login, Authorize
// and Logout. Implementations decide the transport attributes.
type CookieWriter interface {
	SetCookie(name, value string)
	ClearCookie(name string)
}

// CookieMutation is one recorded cookie instruction. Clear is true for
// ClearCookie calls.
type CookieMutation struct {
	Name  string
	Value string
	Clear bool
}

// CookieRecorder is a CookieWriter that keeps mutations in order. It serves
// non-HTTP callers and tests.
type CookieRecorder struct {
	mu        sync.Mutex
	mutations []CookieMutation
}

func (r *CookieRecorder) SetCookie(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations = append(r.mutations, CookieMutation{Name: name, Value: value})
}

func (r *CookieRecorder) ClearCookie(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations = append(r.mutations, CookieMutation{Name: name, Clear: true})
}

// Mutations returns a copy of the recorded mutations.
func (r *CookieRecorder) Mutations() []CookieMutation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CookieMutation, len(r.mutations))
	copy(out, r.mutations)
	return out
}

// Last returns the latest mutation for name.
func (r *CookieRecorder) Last(name string) (CookieMutation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.mutations) - 1; i >= 0; i-- {
		if r.mutations[i].Name == name {
			return r.mutations[i], true
		}
	}
	return CookieMutation{}, false
}

type discardCookies struct{}

func (discardCookies) SetCookie(string, string) {}
func (discardCookies) ClearCookie(string)       {}

func cookiesOrDiscard(w CookieWriter) CookieWriter {
	if w == nil {
		return discardCookies{}
	}
	return w
}
