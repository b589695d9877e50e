package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/accounts/session"
)

// IssueFailureKind classifies session issuance failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureNotReady
	IssueFailureAccessToken
	IssueFailureRefreshToken
	IssueFailureSave
)

// IssueResult carries the new session and its raw tokens, or failure metadata.
// The raw tokens exist only here; the store keeps their digests.
type IssueResult struct {
	Failure      IssueFailureKind
	Err          error
	Session      *session.Session
	AccessToken  string
	RefreshToken string
}

type IssueSessionStore interface {
	Save(ctx context.Context, sess *session.Session, ttl time.Duration) error
}

// IssueDeps captures login session issuance dependencies.
type IssueDeps struct {
	Now              func() time.Time
	NewSessionID     func() string
	IssueAccessToken func(userID string) (string, error)
	NewRefreshToken  func() (string, error)
	RefreshTTL       time.Duration
	// RowRetention keeps the row in Redis past RefreshExpiresAt so an expired
	// refresh is observed and deleted explicitly instead of vanishing.
	RowRetention time.Duration
	SessionStore IssueSessionStore
}

var errIssueNotReady = errors.New("session issuance not configured")

// RunIssueSession creates the session row for a successful login: a fresh
// access token, an independent refresh token and RefreshExpiresAt = now +
// RefreshTTL.
func RunIssueSession(ctx context.Context, userID string, deps IssueDeps) IssueResult {
	if deps.NewSessionID == nil ||
		deps.IssueAccessToken == nil ||
		deps.NewRefreshToken == nil ||
		deps.SessionStore == nil ||
		deps.RefreshTTL <= 0 {
		return IssueResult{Failure: IssueFailureNotReady, Err: errIssueNotReady}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	access, err := deps.IssueAccessToken(userID)
	if err != nil {
		return IssueResult{Failure: IssueFailureAccessToken, Err: err}
	}
	refresh, err := deps.NewRefreshToken()
	if err != nil {
		return IssueResult{Failure: IssueFailureRefreshToken, Err: err}
	}

	now := deps.Now()
	sess := &session.Session{
		ID:               deps.NewSessionID(),
		UserID:           userID,
		AccessHash:       session.Digest(access),
		RefreshHash:      session.Digest(refresh),
		CreatedAt:        now.UnixMilli(),
		RefreshExpiresAt: now.Add(deps.RefreshTTL).UnixMilli(),
	}

	if err := deps.SessionStore.Save(ctx, sess, deps.RefreshTTL+deps.RowRetention); err != nil {
		return IssueResult{Failure: IssueFailureSave, Err: err, Session: sess}
	}

	return IssueResult{
		Failure:      IssueFailureNone,
		Session:      sess,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}
