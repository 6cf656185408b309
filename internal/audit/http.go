package audit

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"qxlog/internal/auth"
)

// ClientIP extracts client ip from common headers or RemoteAddr.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// Event describes an audited action.
type Event struct {
	Action          string
	ResourceType    string
	ResourceID      string
	InstrumentistID string
	Meta            any
}

// Record writes a best-effort audit entry for the request's identity.
// Failures never reach the client; they are logged instead.
func Record(r *http.Request, logger Logger, event Event) {
	if logger == nil || r == nil {
		return
	}
	fields := logrus.Fields{
		"action":        event.Action,
		"resource_type": event.ResourceType,
		"resource_id":   event.ResourceID,
	}
	payload, err := json.Marshal(event.Meta)
	if err != nil {
		failureLogger().WithError(err).WithFields(fields).Warn("audit metadata encode error")
		payload = nil
	}
	entry := Entry{
		Actor:           auth.SubjectFromContext(r.Context()),
		Role:            string(auth.RoleFromContext(r.Context())),
		Action:          event.Action,
		ResourceType:    event.ResourceType,
		ResourceID:      event.ResourceID,
		InstrumentistID: event.InstrumentistID,
		Metadata:        payload,
		IP:              ClientIP(r),
		UserAgent:       r.UserAgent(),
	}
	if err := logger.Log(r.Context(), entry); err != nil {
		failureLogger().WithError(err).WithFields(fields).Error("audit write error")
	}
}
