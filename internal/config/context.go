package config

import "context"

type settingsKey struct{}

// WithSettings stores the loaded settings in the context.
func WithSettings(ctx context.Context, s *Settings) context.Context {
	return context.WithValue(ctx, settingsKey{}, s)
}

// SettingsFrom returns the settings from the context, if set.
func SettingsFrom(ctx context.Context) (*Settings, bool) {
	s, ok := ctx.Value(settingsKey{}).(*Settings)
	return s, ok && s != nil
}

// MustSettingsFrom returns the settings from the context, or panics if not set.
func MustSettingsFrom(ctx context.Context) *Settings {
	if s, ok := SettingsFrom(ctx); ok {
		return s
	}
	panic("releasekit settings missing from context")
}
