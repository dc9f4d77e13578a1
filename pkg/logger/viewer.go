package logger

import "github.com/rs/zerolog"

// ForViewer returns base decorated with the fields every viewer log line carries.
func ForViewer(base zerolog.Logger, viewerID, role, clientID string) zerolog.Logger {
	return base.With().
		Str("viewer_id", viewerID).
		Str("role", role).
		Str("client_id", clientID).
		Logger()
}
