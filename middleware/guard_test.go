package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/accounts"
)

type fakeAuthorizer struct {
	user   *accounts.User
	err    error
	setAT  string
	clear  bool
	tokens accounts.TokenPair
	policy accounts.RoutePolicy
	ip     string
}

func (f *fakeAuthorizer) CookieNames() (string, string) {
	return accounts.DefaultAccessCookieName, accounts.DefaultRefreshCookieName
}

func (f *fakeAuthorizer) Authorize(ctx context.Context, tokens accounts.TokenPair, policy accounts.RoutePolicy, cookies accounts.CookieWriter) (*accounts.User, error) {
	f.tokens, f.policy = tokens, policy
	f.ip = accounts.ClientIPFromContext(ctx)
	if f.setAT != "" {
		cookies.SetCookie(accounts.DefaultAccessCookieName, f.setAT)
	}
	if f.clear {
		cookies.ClearCookie(accounts.DefaultAccessCookieName)
		cookies.ClearCookie(accounts.DefaultRefreshCookieName)
	}
	return f.user, f.err
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromRequest(r)
		if !ok {
			fmt.Fprint(w, "anonymous")
			return
		}
		fmt.Fprint(w, u.ID)
	})
}

func requestWithCookies(access, refresh string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:5123"
	if access != "" {
		r.AddCookie(&http.Cookie{Name: accounts.DefaultAccessCookieName, Value: access})
	}
	if refresh != "" {
		r.AddCookie(&http.Cookie{Name: accounts.DefaultRefreshCookieName, Value: refresh})
	}
	return r
}

func TestGuardAttachesUserAndRefreshCookie(t *testing.T) {
	auth := &fakeAuthorizer{user: &accounts.User{ID: "u1"}, setAT: "new-access"}
	h := Guard(auth, accounts.RouteAuthenticated, DefaultCookieOptions())(echoUser())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithCookies("old", "refresh"))

	if rec.Code != http.StatusOK || rec.Body.String() != "u1" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if auth.tokens.AccessToken != "old" || auth.tokens.RefreshToken != "refresh" {
		t.Fatalf("unexpected tokens %+v", auth.tokens)
	}
	if auth.ip != "203.0.113.7" {
		t.Fatalf("expected client ip in context, got %q", auth.ip)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != "new-access" || !cookies[0].HttpOnly || !cookies[0].Secure {
		t.Fatalf("unexpected cookies %+v", cookies)
	}
}

func TestGuardForwardsRefreshedAccessToken(t *testing.T) {
	auth := &fakeAuthorizer{user: &accounts.User{ID: "u1"}, setAT: "new-access"}
	var seen accounts.TokenPair
	h := Guard(auth, accounts.RouteAuthenticated, DefaultCookieOptions())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TokensFromRequest(r, accounts.DefaultAccessCookieName, accounts.DefaultRefreshCookieName)
	}))

	h.ServeHTTP(httptest.NewRecorder(), requestWithCookies("old", "refresh"))
	if seen.AccessToken != "new-access" || seen.RefreshToken != "refresh" {
		t.Fatalf("expected handler to see the refreshed pair, got %+v", seen)
	}
}

func TestGuardErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{accounts.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
		{accounts.ErrForbidden, http.StatusForbidden, "Forbidden resource"},
		{accounts.ErrRefreshConflict, http.StatusConflict, accounts.ErrRefreshConflict.Error()},
		{fmt.Errorf("%w: dial tcp", accounts.ErrSessionStoreUnavailable), http.StatusInternalServerError, "Internal Server Error"},
	}
	for _, tc := range cases {
		auth := &fakeAuthorizer{err: tc.err, clear: true}
		h := Guard(auth, accounts.RouteAuthenticated, DefaultCookieOptions())(echoUser())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestWithCookies("a", "r"))

		if rec.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rec.Code)
		}
		want := fmt.Sprintf(`{"statusCode":%d,"message":%q}`, tc.status, tc.msg)
		if strings.TrimSpace(rec.Body.String()) != want {
			t.Fatalf("expected body %s, got %s", want, rec.Body.String())
		}
		for _, ck := range rec.Result().Cookies() {
			if ck.MaxAge >= 0 {
				t.Fatalf("expected cleared cookie, got %+v", ck)
			}
		}
	}
}

func TestGuardPublicSkipsAuthorizer(t *testing.T) {
	auth := &fakeAuthorizer{err: errors.New("must not be called")}
	h := Guard(auth, accounts.RoutePublic, DefaultCookieOptions())(echoUser())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithCookies("a", "r"))
	if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if auth.tokens.AccessToken != "" {
		t.Fatal("public routes must not consult the engine")
	}
}

func TestGuardAnonymousAllowed(t *testing.T) {
	auth := &fakeAuthorizer{}
	h := Guard(auth, accounts.RouteWithoutAuth, DefaultCookieOptions())(echoUser())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithCookies("", ""))
	if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if auth.policy != accounts.RouteWithoutAuth {
		t.Fatalf("expected policy to be forwarded, got %v", auth.policy)
	}
}

func TestGuardNilAuthorizer(t *testing.T) {
	h := Guard(nil, accounts.RouteAuthenticated, DefaultCookieOptions())(echoUser())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithCookies("a", ""))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestStatusForWrappedClientError(t *testing.T) {
	err := fmt.Errorf("signup: %w", accounts.ErrDuplicateEmail)
	if StatusFor(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", StatusFor(err))
	}
	if clientMessage(err) != accounts.ErrDuplicateEmail.Error() {
		t.Fatalf("expected bare sentinel message, got %q", clientMessage(err))
	}
	if StatusFor(nil) != http.StatusOK {
		t.Fatal("nil error must map to 200")
	}
}
