package values

type contextKey string

// Response statuses shared by handlers and util.StatusCode.
const (
	Success        = "success"
	Created        = "created"
	Error          = "error"
	Failed         = "failed"
	SystemErr      = "system_error"
	BadRequestBody = "bad_request_body"
	Unprocessable  = "unprocessable"
	NotAllowed     = "not_allowed"
	Conflict       = "conflict"
	NotFound       = "not_found"
	NotAuthorised  = "not_authorised"
	TokenExpired   = "token_expired"
	ActiveLogin    = "active_login"
)

const (
	HeaderRequestSource = "X-Request-Source"
	HeaderRequestID     = "X-Request-ID"
	HeaderGuestUsername = "X-Guest-Username"
)

const (
	ContextTracingKey  contextKey = "tracing"
	ContextUsernameKey contextKey = "guest_username"
)

// GuestUsername is the sentinel identity used before onboarding picks a name.
const GuestUsername = "Gast"
