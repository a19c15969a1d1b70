package telemetry

import (
	"github.com/rjboer/gosoapy/internal/device"
	"github.com/rjboer/gosoapy/internal/logging"
)

// LogReporter writes status lines to a logger.
type LogReporter struct {
	logger logging.Logger
}

// NewLogReporter builds a reporter on logger, or the default logger.
func NewLogReporter(logger logging.Logger) LogReporter {
	return LogReporter{logger: logging.Or(logger)}
}

func (r LogReporter) Report(text string) {
	r.logger.Info("worker status", logging.F("subsystem", "soapy"), logging.F("text", text))
}

// MultiReporter fans out status lines to multiple destinations.
type MultiReporter []device.Reporter

func (m MultiReporter) Report(text string) {
	for _, r := range m {
		if r != nil {
			r.Report(text)
		}
	}
}
