package quic

import (
	"github.com/kdk8gico/h3qpack/metrics"
	"github.com/rs/zerolog"
)

// Config bundles a Session's collaborators. Executor, BufferPool, and
// Scheduler are required; Metrics and Logger are optional, matching the
// teacher's plain-struct configuration style rather than a functional-
// options builder.
type Config struct {
	Executor   Executor
	BufferPool BufferPool
	Scheduler  Scheduler
	Sink       DatagramSink

	// MinDatagramSize is the minimum capacity requested from BufferPool
	// for each flusher iteration's cipher buffer.
	MinDatagramSize int

	Metrics *metrics.Metrics
	Logger  *zerolog.Logger
}

func (c Config) logger() zerolog.Logger {
	if c.Logger != nil {
		return *c.Logger
	}
	return zerolog.Nop()
}

func (c Config) minDatagramSize() int {
	if c.MinDatagramSize > 0 {
		return c.MinDatagramSize
	}
	return QUICHEMinClientInitialLen
}
