package response

// 业务码沿用 HTTP 语义；HTTP 层统一回 200，错误语义只体现在 status_code。
const (
	CodeOK = 0

	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeConflict        = 409
	CodeTooManyRequests = 429

	CodeInternal   = 500
	CodeBadGateway = 502
)
