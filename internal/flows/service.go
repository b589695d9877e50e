package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Extract.VerifyAccess != nil &&
		s.deps.Refresh.SessionStore != nil &&
		s.deps.Issue.SessionStore != nil
}

func (s Service) IssueSession(ctx context.Context, userID string) IssueResult {
	return RunIssueSession(ctx, userID, s.deps.Issue)
}

func (s Service) SilentRefresh(ctx context.Context, accessToken, refreshToken string) RefreshResult {
	return RunSilentRefresh(ctx, accessToken, refreshToken, s.deps.Refresh)
}

func (s Service) Extract(ctx context.Context, accessToken, refreshToken string) ExtractResult {
	return RunExtract(ctx, accessToken, refreshToken, s.deps.Extract, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, accessToken, refreshToken string) LogoutResult {
	return RunLogout(ctx, accessToken, refreshToken, s.deps.Logout)
}
