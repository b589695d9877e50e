package flows

import (
	"context"
	"time"
)

// ExtractSource reports where an extracted user id came from.
type ExtractSource int

const (
	ExtractSourceNone ExtractSource = iota
	ExtractSourceAccessToken
	ExtractSourceRefresh
)

// ExtractResult is the token half of user extraction: which user id the
// request carries and which cookie mutations the caller must apply. Looking
// the user up is left to the engine.
type ExtractResult struct {
	Source ExtractSource
	UserID string

	// AccessErr is the verification failure of the presented access token.
	AccessErr error
	// Refresh is set when a silent refresh was attempted.
	Refresh *RefreshResult

	// SetAccessToken is the new access cookie value after a refresh.
	SetAccessToken string
	ClearCookies   bool

	// Err is a failure the caller must propagate instead of treating the
	// request as anonymous.
	Err error
}

// ExtractDeps captures extraction dependencies.
type ExtractDeps struct {
	VerifyAccess func(token string) (subject string, err error)
}

// RunExtract verifies the access token and falls back to a silent refresh
// when it fails and a refresh token was presented. A refresh token alone is
// never used.
func RunExtract(
	ctx context.Context,
	accessToken, refreshToken string,
	deps ExtractDeps,
	refreshDeps RefreshDeps,
) ExtractResult {
	if accessToken == "" {
		return ExtractResult{}
	}

	subject, err := deps.VerifyAccess(accessToken)
	if err == nil {
		return ExtractResult{Source: ExtractSourceAccessToken, UserID: subject}
	}
	if refreshToken == "" {
		return ExtractResult{AccessErr: err}
	}

	if refreshDeps.Now == nil {
		refreshDeps.Now = time.Now
	}
	rr := RunSilentRefresh(ctx, accessToken, refreshToken, refreshDeps)
	res := ExtractResult{AccessErr: err, Refresh: &rr}

	switch rr.Failure {
	case RefreshFailureNone:
		res.Source = ExtractSourceRefresh
		res.UserID = rr.UserID
		res.SetAccessToken = rr.AccessToken
	case RefreshFailureSessionNotFound, RefreshFailureSessionExpired:
		res.ClearCookies = true
	case RefreshFailureConflict:
		// Another request already rotated this pair; its cookie is canonical.
	default:
		res.Err = rr.Err
	}
	return res
}
