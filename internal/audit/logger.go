// Package audit records security relevant events as one JSON line each.
package audit

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Actions recorded by the authorization code service.
const (
	ActionIssueCode  = "authcode.issue"
	ActionRedeemCode = "authcode.redeem"
)

// Event represents an audit log event. It never carries a code or a secret.
type Event struct {
	Action  string
	User    string // user ID
	Target  string // client ID
	Success bool
	Err     error
}

// Logger writes audit events. A nil *Logger discards them.
type Logger struct {
	service string
	out     zerolog.Logger
	now     func() time.Time
}

// New creates a Logger writing to w.
func New(w io.Writer, service string) *Logger {
	return &Logger{
		service: service,
		out:     zerolog.New(w),
		now:     time.Now,
	}
}

// Record writes ev.
func (l *Logger) Record(ev Event) {
	if l == nil {
		return
	}

	entry := l.out.Log().
		Time("timestamp", l.now().UTC()).
		Str("service", l.service).
		Str("action", ev.Action).
		Bool("success", ev.Success)
	if ev.User != "" {
		entry = entry.Str("user", ev.User)
	}
	if ev.Target != "" {
		entry = entry.Str("target", ev.Target)
	}
	if ev.Err != nil {
		entry = entry.Str("error", ev.Err.Error())
	}
	entry.Send()
}
