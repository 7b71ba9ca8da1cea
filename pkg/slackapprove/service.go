package slackapprove

import (
	"context"
	"log/slog"
	"time"
)

// ServiceConfig holds the parameters needed to construct a Service,
// mirrored on the teacher's pkg/slack.ServiceConfig.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service delivers approval-gate notifications to Slack; later
// notifications about a gate are threaded under the timestamp
// NotifyRequested returned, when the caller passes it back. The messages
// this package builds do not contain the Fingerprint text, so the
// fingerprint lookup NotifyEscalation falls back to matches none of them.
// Nil-safe: every method is a no-op when the service itself is
// nil, exactly as the teacher's pkg/slack.Service documents, so callers
// never need a feature flag to disable Slack notifications — an empty
// token or channel in config is enough.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a Service, or nil if Token or Channel is unset.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "slackapprove-service"),
	}
}

// NewServiceWithClient builds a Service around a pre-constructed Client,
// for tests against a mock Slack server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{client: client, dashboardURL: dashboardURL, logger: slog.Default().With("component", "slackapprove-service")}
}

// NotifyRequested posts the initial approval-gate message and returns
// the thread timestamp for reuse by later notifications about the same
// gate. Fail-open: delivery errors are logged, never returned, since a
// missed Slack notification must never block the orchestrator's state
// machine.
func (s *Service) NotifyRequested(ctx context.Context, investigationID, severity, action, deadlineUTC string) string {
	if s == nil {
		return ""
	}
	blocks := BuildRequestedMessage(investigationID, severity, action, deadlineUTC, s.dashboardURL)
	ts, err := s.client.PostMessage(ctx, blocks, "", 5*time.Second)
	if err != nil {
		s.logger.Error("failed to send approval-requested notification", "investigation_id", investigationID, "error", err)
		return ""
	}
	return ts
}

// NotifyEscalation posts the 50%-of-interval reminder threaded against
// threadTS. If threadTS is empty it looks the thread up by fingerprint
// first, matching the teacher's start-then-thread pattern; that lookup
// finds only a message whose text contains the fingerprint, and when it
// finds none the reminder is posted as a new top-level message.
func (s *Service) NotifyEscalation(ctx context.Context, investigationID, severity, action, threadTS string) {
	if s == nil {
		return
	}
	if threadTS == "" {
		found, err := s.client.FindMessageByFingerprint(ctx, Fingerprint(investigationID, action))
		if err != nil {
			s.logger.Warn("failed to find Slack thread for fingerprint", "investigation_id", investigationID, "error", err)
		}
		threadTS = found
	}
	blocks := BuildEscalationMessage(investigationID, severity, s.dashboardURL)
	if _, err := s.client.PostMessage(ctx, blocks, threadTS, 5*time.Second); err != nil {
		s.logger.Error("failed to send escalation notification", "investigation_id", investigationID, "error", err)
	}
}

// NotifyResolved posts the terminal outcome, threaded against threadTS
// when known.
func (s *Service) NotifyResolved(ctx context.Context, investigationID, resolution, threadTS string) {
	if s == nil {
		return
	}
	blocks := BuildResolvedMessage(investigationID, resolution)
	if _, err := s.client.PostMessage(ctx, blocks, threadTS, 5*time.Second); err != nil {
		s.logger.Error("failed to send approval-resolved notification", "investigation_id", investigationID, "error", err)
	}
}
