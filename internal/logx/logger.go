package logx

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config is read from AGRILOCAL_LOG_* variables.
type Config struct {
	Debug        bool `split_words:"true" default:"false"`
	PrettyFormat bool `split_words:"true" default:"false"`
}

// Level is the minimum level cfg enables.
func (cfg Config) Level() zerolog.Level {
	if cfg.Debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// InitTo points the global logger at w. The menu passes stderr so its
// reports on stdout are not interleaved with log lines.
func InitTo(w io.Writer, cfg Config) {
	if cfg.PrettyFormat {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true}
	}
	log.Logger = zerolog.New(w).Level(cfg.Level()).With().Timestamp().Caller().Logger()
}
