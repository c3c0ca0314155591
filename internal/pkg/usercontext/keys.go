package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyUserID    = "user_id"
	KeyUsername  = "username"
	KeyIsAdmin   = "isAdmin"
	KeyAPIKeyID  = "api_key_id"
	KeyRateLimit = "rate_limit_decision"
)
