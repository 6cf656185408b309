package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Entry is one row of the audit trail. InstrumentistID names the instrumentist
// whose procedures or payouts were touched, empty for global changes.
type Entry struct {
	ID              string
	Actor           string
	Role            string
	Action          string
	ResourceType    string
	ResourceID      string
	InstrumentistID string
	Metadata        json.RawMessage
	PayloadDigest   string
	IP              string
	UserAgent       string
	CreatedAt       time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

var (
	failureMu  sync.RWMutex
	failureLog logrus.FieldLogger = logrus.StandardLogger()
)

// SetFailureLogger sets where dropped audit entries are reported.
func SetFailureLogger(logger logrus.FieldLogger) {
	if logger == nil {
		return
	}
	failureMu.Lock()
	failureLog = logger
	failureMu.Unlock()
}

func failureLogger() logrus.FieldLogger {
	failureMu.RLock()
	defer failureMu.RUnlock()
	return failureLog
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
