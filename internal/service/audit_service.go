package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/media-auth-service/internal/events"
	"github.com/spec-kit/media-auth-service/internal/observability"
)

// AuditService turns security events into structured log lines and counters.
// Reuse detections surface here at warn level while the HTTP response to the
// attacker stays generic.
type AuditService struct {
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewAuditService builds the service.
func NewAuditService(dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *AuditService {
	return &AuditService{dispatcher: dispatcher, metrics: metrics, logger: logger}
}

// RegisterHandlers subscribes the audit sinks to every auth event type.
func (s *AuditService) RegisterHandlers() {
	for _, eventType := range []events.EventType{
		events.EventAccountRegistered,
		events.EventLoginSucceeded,
		events.EventLoginFailed,
		events.EventTokensRotated,
		events.EventTokenReuseDetected,
		events.EventTokensRevoked,
	} {
		s.dispatcher.Subscribe(eventType, s.record)
	}
}

func (s *AuditService) record(_ context.Context, event events.Event) error {
	s.metrics.RecordAuthEvent(string(event.Type))

	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("account_id", event.AccountID),
		zap.Time("at", event.Timestamp),
	}
	if event.Payload != nil {
		fields = append(fields, zap.Any("payload", event.Payload))
	}

	switch event.Type {
	case events.EventTokenReuseDetected:
		s.logger.Warn("security event: "+string(event.Type), fields...)
	case events.EventLoginFailed:
		s.logger.Info("security event: "+string(event.Type), fields...)
	default:
		s.logger.Info("audit event: "+string(event.Type), fields...)
	}
	return nil
}
