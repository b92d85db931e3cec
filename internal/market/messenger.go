package market

import "log/slog"

// LogMessenger routes user messages to the structured log. The daemon uses
// it when no chat transport is attached; tests swap in a recorder.
type LogMessenger struct{}

func (LogMessenger) Message(user, text string) {
	slog.Info("message", "user", user, "text", text)
}

func (LogMessenger) Error(user, text string) {
	slog.Warn("refusal", "user", user, "text", text)
}
