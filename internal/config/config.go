// Package config loads notestream settings from a YAML file and the
// environment.
package config

import (
	"time"

	"github.com/roach88/notestream/internal/engine"
	"github.com/roach88/notestream/internal/projector"
	"github.com/roach88/notestream/internal/recalc"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Stream   StreamConfig   `yaml:"stream"`
	Metadata MetadataConfig `yaml:"metadata"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path        string        `yaml:"path"         env:"NOTESTREAM_DB"           env-default:"notestream.db"`
	BusyTimeout time.Duration `yaml:"busy_timeout" env:"NOTESTREAM_BUSY_TIMEOUT" env-default:"5s"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"NOTESTREAM_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"NOTESTREAM_LOG_FORMAT" env-default:"text"`
}

// StreamConfig bounds stream queries and the access recalculation.
type StreamConfig struct {
	NoteACLLimit                int           `yaml:"note_acl_limit"                  env:"NOTESTREAM_NOTE_ACL_LIMIT"           env-default:"50"`
	NoteACLPeriod               time.Duration `yaml:"note_acl_period"                 env:"NOTESTREAM_NOTE_ACL_PERIOD"          env-default:"72h"`
	NoteNotificationPeriod      time.Duration `yaml:"note_notification_period"        env:"NOTESTREAM_NOTE_NOTIFICATION_PERIOD" env-default:"1h"`
	EmailWithContentEntityTypes []string      `yaml:"email_with_content_entity_types" env:"NOTESTREAM_EMAIL_WITH_CONTENT"       env-separator:","`
	FollowersLimit              int           `yaml:"followers_limit"                 env:"NOTESTREAM_FOLLOWERS_LIMIT"          env-default:"200"`
	MaxSizeLimit                int           `yaml:"max_size_limit"                  env:"NOTESTREAM_MAX_SIZE_LIMIT"           env-default:"200"`
}

// MetadataConfig locates the CUE metadata. An empty Dir means the
// built-in metadata.
type MetadataConfig struct {
	Dir string `yaml:"dir" env:"NOTESTREAM_METADATA_DIR"`
}

// Engine returns the engine settings.
func (s StreamConfig) Engine() engine.Config {
	return engine.Config{
		Projector: projector.Config{EmailWithContentEntityTypes: s.EmailWithContentEntityTypes},
		Recalc: recalc.Config{
			NoteACLLimit:           s.NoteACLLimit,
			NoteACLPeriod:          s.NoteACLPeriod,
			NoteNotificationPeriod: s.NoteNotificationPeriod,
		},
		FollowersLimit: s.FollowersLimit,
		MaxSizeLimit:   s.MaxSizeLimit,
	}
}
