package internaldefs

import "github.com/MrEthical07/accounts"

type CounterDef struct {
	ID   accounts.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   accounts.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: accounts.MetricLoginSuccess, Name: "accounts_login_success_total", Help: "Successful logins."},
	{ID: accounts.MetricLoginFailure, Name: "accounts_login_failure_total", Help: "Failed logins."},
	{ID: accounts.MetricLoginInactive, Name: "accounts_login_inactive_total", Help: "Logins rejected because the account is not active."},
	{ID: accounts.MetricSessionCreated, Name: "accounts_session_created_total", Help: "Created sessions."},
	{ID: accounts.MetricPasswordHashUpgraded, Name: "accounts_password_hash_upgraded_total", Help: "Password hashes rehashed with current parameters at login."},
	{ID: accounts.MetricAuthorizeAllowed, Name: "accounts_authorize_allowed_total", Help: "Guarded requests let through."},
	{ID: accounts.MetricAuthorizeUnauthorized, Name: "accounts_authorize_unauthorized_total", Help: "Guarded requests rejected as unauthenticated."},
	{ID: accounts.MetricAuthorizeForbidden, Name: "accounts_authorize_forbidden_total", Help: "Anonymous-only requests rejected for carrying a session."},
	{ID: accounts.MetricUserLookupSwallowed, Name: "accounts_user_lookup_swallowed_total", Help: "Guard user lookups whose error was treated as no user."},
	{ID: accounts.MetricRefreshSuccess, Name: "accounts_refresh_success_total", Help: "Successful silent refreshes."},
	{ID: accounts.MetricRefreshNotFound, Name: "accounts_refresh_not_found_total", Help: "Refreshes with no matching session."},
	{ID: accounts.MetricRefreshExpired, Name: "accounts_refresh_expired_total", Help: "Refreshes of expired sessions."},
	{ID: accounts.MetricRefreshConflict, Name: "accounts_refresh_conflict_total", Help: "Refreshes lost to a concurrent refresh."},
	{ID: accounts.MetricRefreshFailure, Name: "accounts_refresh_failure_total", Help: "Refreshes failed by the session store."},
	{ID: accounts.MetricLogout, Name: "accounts_logout_total", Help: "Logouts."},
	{ID: accounts.MetricSignupSuccess, Name: "accounts_signup_success_total", Help: "Created accounts."},
	{ID: accounts.MetricSignupDuplicate, Name: "accounts_signup_duplicate_total", Help: "Signups rejected as duplicate."},
	{ID: accounts.MetricVerificationSent, Name: "accounts_verification_sent_total", Help: "Verification emails sent."},
	{ID: accounts.MetricVerifySuccess, Name: "accounts_verify_success_total", Help: "Successful email verifications."},
	{ID: accounts.MetricVerifyFailure, Name: "accounts_verify_failure_total", Help: "Failed email verifications."},
	{ID: accounts.MetricPasswordResetRequest, Name: "accounts_password_reset_request_total", Help: "Password reset requests."},
	{ID: accounts.MetricPasswordResetSuccess, Name: "accounts_password_reset_success_total", Help: "Completed password resets."},
	{ID: accounts.MetricPasswordResetFailure, Name: "accounts_password_reset_failure_total", Help: "Failed password resets."},
	{ID: accounts.MetricMailFailure, Name: "accounts_mail_failure_total", Help: "Mail deliveries that failed."},
}

var HistogramDefs = []HistogramDef{
	{ID: accounts.MetricAuthorizeLatency, Name: "accounts_authorize_latency_seconds", Help: "Authorize latency."},
}

// AuditDroppedName is the counter of audit events dropped under backpressure.
const (
	AuditDroppedName = "accounts_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// HistogramUpperBounds are the finite bucket bounds in seconds; the eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the eight snapshot buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
