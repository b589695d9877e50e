package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/accounts/session"
)

// RefreshFailureKind classifies silent refresh failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureSessionNotFound
	RefreshFailureSessionExpired
	RefreshFailureConflict
	RefreshFailureIssueAccess
	RefreshFailureStore
)

func (k RefreshFailureKind) String() string {
	switch k {
	case RefreshFailureNone:
		return "none"
	case RefreshFailureSessionNotFound:
		return "session_not_found"
	case RefreshFailureSessionExpired:
		return "session_expired"
	case RefreshFailureConflict:
		return "conflict"
	case RefreshFailureIssueAccess:
		return "issue_access"
	case RefreshFailureStore:
		return "store"
	default:
		return "unknown"
	}
}

// RefreshResult carries either the refreshed session and access token or
// failure metadata.
type RefreshResult struct {
	Failure     RefreshFailureKind
	Err         error
	SessionID   string
	UserID      string
	Session     *session.Session
	AccessToken string
}

type RefreshSessionStore interface {
	FindByTokens(ctx context.Context, accessToken, refreshToken string) (*session.Session, error)
	ReplaceAccessToken(
		ctx context.Context,
		sess *session.Session,
		nextAccessToken string,
		now time.Time,
		strict bool,
	) (*session.Session, error)
	Delete(ctx context.Context, sessionID string) (bool, error)
}

// RefreshDeps captures silent refresh dependencies.
type RefreshDeps struct {
	Now              func() time.Time
	IssueAccessToken func(userID string) (string, error)
	// StrictReplace rejects a replacement when another request already moved
	// the session's access token. When false the last writer wins.
	StrictReplace bool
	SessionStore  RefreshSessionStore
}

// RunSilentRefresh looks up the session by the exact (access, refresh) pair,
// deletes it when the refresh lifetime has passed, and otherwise replaces the
// access token in place.
func RunSilentRefresh(ctx context.Context, accessToken, refreshToken string, deps RefreshDeps) RefreshResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	sess, err := deps.SessionStore.FindByTokens(ctx, accessToken, refreshToken)
	if err != nil {
		return refreshStoreFailure(err, nil)
	}

	now := deps.Now()
	if sess.Expired(now) {
		if _, err := deps.SessionStore.Delete(ctx, sess.ID); err != nil {
			return RefreshResult{
				Failure:   RefreshFailureStore,
				Err:       err,
				SessionID: sess.ID,
				UserID:    sess.UserID,
				Session:   sess,
			}
		}
		return RefreshResult{
			Failure:   RefreshFailureSessionExpired,
			Err:       session.ErrSessionExpired,
			SessionID: sess.ID,
			UserID:    sess.UserID,
			Session:   sess,
		}
	}

	access, err := deps.IssueAccessToken(sess.UserID)
	if err != nil {
		return RefreshResult{
			Failure:   RefreshFailureIssueAccess,
			Err:       err,
			SessionID: sess.ID,
			UserID:    sess.UserID,
			Session:   sess,
		}
	}

	updated, err := deps.SessionStore.ReplaceAccessToken(ctx, sess, access, now, deps.StrictReplace)
	if err != nil {
		return refreshStoreFailure(err, sess)
	}

	return RefreshResult{
		Failure:     RefreshFailureNone,
		SessionID:   updated.ID,
		UserID:      updated.UserID,
		Session:     updated,
		AccessToken: access,
	}
}

func refreshStoreFailure(err error, sess *session.Session) RefreshResult {
	res := RefreshResult{Err: err, Session: sess}
	if sess != nil {
		res.SessionID = sess.ID
		res.UserID = sess.UserID
	}

	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionCorrupt):
		res.Failure = RefreshFailureSessionNotFound
	case errors.Is(err, session.ErrSessionExpired):
		res.Failure = RefreshFailureSessionExpired
	case errors.Is(err, session.ErrAccessMismatch):
		res.Failure = RefreshFailureConflict
	default:
		res.Failure = RefreshFailureStore
	}
	return res
}
