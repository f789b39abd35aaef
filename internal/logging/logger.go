// Package logging is the structured logger shared by the API server, the
// capture worker and tmsctl. SlogLogger is the only implementation.
package logging

import "context"

// Logger takes a message plus alternating key/value pairs:
//
//	log.Info(ctx, "bundle upload url issued", "session_id", id, "ttl_seconds", ttl)
//
// Warn is the channel for failures that do not change the outcome of an
// operation, such as a session-log append or a dropped audit record.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child that adds args to every record.
	With(args ...any) Logger
}
