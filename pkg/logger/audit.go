package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	SessionID     string
	RequestID     string
	IPAddress     string
	Fingerprint   string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogAuthAttempt logs login, resume and pulse outcomes
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := al.baseAttrs("auth", event)

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

// LogChallenge logs MFA challenge issuance and verification outcomes
func (al *AuditLogger) LogChallenge(event AuditEvent) {
	attrs := al.baseAttrs("mfa", event)

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

// LogDeviceTrust logs device and location trust decisions
func (al *AuditLogger) LogDeviceTrust(event AuditEvent) {
	attrs := al.baseAttrs("device_trust", event)
	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}

func (al *AuditLogger) baseAttrs(auditType string, event AuditEvent) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.Fingerprint != "" {
		attrs = append(attrs, slog.String("device_fingerprint", event.Fingerprint))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	return attrs
}
