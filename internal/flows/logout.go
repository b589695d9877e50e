package flows

import "context"

type LogoutSessionStore interface {
	DeleteByTokens(ctx context.Context, accessToken, refreshToken string) (bool, error)
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	SessionStore LogoutSessionStore
}

type LogoutResult struct {
	Deleted bool
	Err     error
}

// RunLogout deletes the session holding accessToken, additionally matching
// refreshToken when one is given. Without an access token there is nothing
// to match.
func RunLogout(ctx context.Context, accessToken, refreshToken string, deps LogoutDeps) LogoutResult {
	if accessToken == "" || deps.SessionStore == nil {
		return LogoutResult{}
	}
	deleted, err := deps.SessionStore.DeleteByTokens(ctx, accessToken, refreshToken)
	return LogoutResult{Deleted: deleted, Err: err}
}
