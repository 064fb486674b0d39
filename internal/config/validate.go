package config

import (
	"fmt"
	"strings"
)

// Validate checks the loaded values. Load calls it automatically.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path must be set")
	}
	if err := c.Log.validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Stream.validate(); err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	return nil
}

func (l *LogConfig) validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be debug, info, warn or error (got %q)", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("format must be text or json (got %q)", l.Format)
	}
	return nil
}

func (s *StreamConfig) validate() error {
	if s.NoteACLLimit <= 0 {
		return fmt.Errorf("note_acl_limit must be > 0 (got %d)", s.NoteACLLimit)
	}
	if s.NoteACLPeriod <= 0 {
		return fmt.Errorf("note_acl_period must be > 0 (got %s)", s.NoteACLPeriod)
	}
	if s.NoteNotificationPeriod <= 0 {
		return fmt.Errorf("note_notification_period must be > 0 (got %s)", s.NoteNotificationPeriod)
	}
	if s.NoteNotificationPeriod > s.NoteACLPeriod {
		return fmt.Errorf("note_notification_period (%s) must not exceed note_acl_period (%s)",
			s.NoteNotificationPeriod, s.NoteACLPeriod)
	}
	if s.FollowersLimit <= 0 {
		return fmt.Errorf("followers_limit must be > 0 (got %d)", s.FollowersLimit)
	}
	if s.MaxSizeLimit <= 0 {
		return fmt.Errorf("max_size_limit must be > 0 (got %d)", s.MaxSizeLimit)
	}
	return nil
}
