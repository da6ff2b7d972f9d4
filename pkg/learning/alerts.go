package learning

import (
	"context"

	"github.com/Russete77/migadigital/pkg/observability/logging"
)

// Severity of an operational alert raised by the learning pipeline.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alerter receives alerts raised while processing feedback. Implementations
// must not block; pipeline processing continues regardless of delivery.
type Alerter interface {
	Alert(ctx context.Context, severity Severity, message string, fields map[string]string)
}

// LogAlerter writes alerts to the structured log. It is the default sink;
// a pager or webhook sink can replace it in production wiring.
type LogAlerter struct{}

func (LogAlerter) Alert(_ context.Context, severity Severity, message string, fields map[string]string) {
	switch severity {
	case SeverityHigh:
		logging.Errorf("[Alert] severity=%s %s fields=%v", severity, message, fields)
	default:
		logging.Warnf("[Alert] severity=%s %s fields=%v", severity, message, fields)
	}
}
