package common

const (
	// SharedSessionName is the reserved name of the canonical shared session.
	SharedSessionName = "Shared TMS Session"

	// AuthorizationHeader carries the bearer token on API requests.
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "

	ContentTypeZip    = "application/zip"
	ContentTypeBinary = "application/octet-stream"
	ContentTypeJSON   = "application/json"
)
