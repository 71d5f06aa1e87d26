package qpack

import (
	"github.com/kdk8gico/h3qpack/metrics"
	"github.com/rs/zerolog"
)

// Config bundles an Encoder's optional collaborators. The zero value is a
// usable default: no metrics, a no-op logger.
type Config struct {
	// MaxBlockedStreams is the blocked-streams budget (RFC 9204 SETTINGS
	// value negotiated out-of-band by the HTTP/3 layer).
	MaxBlockedStreams int

	Metrics *metrics.Metrics
	Logger  *zerolog.Logger
}

func (c Config) logger() zerolog.Logger {
	if c.Logger != nil {
		return *c.Logger
	}
	return zerolog.Nop()
}
