package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level orders log lines by severity. Lines below the logger's minimum level are dropped.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

func (lvl Level) String() string {
	switch lvl {
	case LevelDebug:
		return "DEBUG"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel maps "debug", "info" and "error" (any case) to a Level. Anything else is an error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// ErrorObject is emitted only for error logs.
type ErrorObject struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack,omitempty"`
}

// LogEntry is one JSON line.
type LogEntry struct {
	Timestamp string       `json:"timestamp"` // RFC 3339, UTC
	Level     string       `json:"level"`
	Service   string       `json:"service"` // tracker-service | device-gateway
	Action    string       `json:"action"`  // snake_case event name, e.g. history_entry_persisted
	Message   string       `json:"message"`
	Hostname  string       `json:"hostname"`
	RequestID string       `json:"request_id,omitempty"`
	OwnerID   string       `json:"owner_id,omitempty"`
	PetID     string       `json:"pet_id,omitempty"`
	DeviceID  string       `json:"device_id,omitempty"`
	Details   any          `json:"details,omitempty"`
	Error     *ErrorObject `json:"error,omitempty"`
}

// Logger writes JSON lines tagged with the ids carried in the context.
type Logger struct {
	service  string
	hostname string
	min      atomic.Int32

	mu  sync.Mutex
	out io.Writer
}

// New creates a logger for service that writes to stdout at INFO.
func New(service string) *Logger {
	return NewWithWriter(service, os.Stdout)
}

// NewWithWriter creates a logger that writes to w. A nil w discards everything.
func NewWithWriter(service string, w io.Writer) *Logger {
	if w == nil {
		w = io.Discard
	}
	hn, err := os.Hostname()
	if err != nil || strings.TrimSpace(hn) == "" {
		hn = "unknown-hostname"
	}
	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}

	l := &Logger{service: service, hostname: hn, out: w}
	l.min.Store(int32(LevelInfo))
	return l
}

// SetLevel changes the minimum level. Safe to call while logging.
func (l *Logger) SetLevel(lvl Level) { l.min.Store(int32(lvl)) }

// Enabled reports whether lines at lvl are written.
func (l *Logger) Enabled(lvl Level) bool { return int32(lvl) >= l.min.Load() }

// Debug writes a DEBUG line. Hot-path events (every poll, every fix) log here.
func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.log(ctx, LevelDebug, action, msg, nil, details)
}

// Info writes an INFO line.
func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.log(ctx, LevelInfo, action, msg, nil, details)
}

// Error writes an ERROR line with err and the current stack.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}
	l.log(ctx, LevelError, action, msg, err, details)
}

func (l *Logger) log(ctx context.Context, lvl Level, action, msg string, err error, details any) {
	if !l.Enabled(lvl) {
		return
	}

	ids := fieldsFrom(ctx)
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     lvl.String(),
		Service:   l.service,
		Action:    safeAction(action),
		Message:   strings.TrimSpace(msg),
		Hostname:  l.hostname,
		RequestID: ids.requestID,
		OwnerID:   ids.ownerID,
		PetID:     ids.petID,
		DeviceID:  ids.deviceID,
		Details:   details,
	}
	if err != nil {
		entry.Error = &ErrorObject{Msg: strings.TrimSpace(err.Error()), Stack: string(debug.Stack())}
	}

	l.write(entry)
}

// write encodes one line. Details that cannot be encoded are dropped rather than the whole line.
func (l *Logger) write(entry LogEntry) {
	b, err := json.Marshal(entry)
	if err != nil {
		entry.Details = map[string]any{"details_encode_error": err.Error()}
		if b, err = json.Marshal(entry); err != nil {
			fmt.Fprintf(os.Stderr, "log marshal failed: %v\n", err)
			return
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(b, '\n'))
}

// ----- context ids -----

type ctxKey struct{}

type fields struct {
	requestID string
	ownerID   string
	petID     string
	deviceID  string
}

func fieldsFrom(ctx context.Context) fields {
	if ctx == nil {
		return fields{}
	}
	f, _ := ctx.Value(ctxKey{}).(fields)
	return f
}

func with(ctx context.Context, set func(*fields), v string) context.Context {
	if strings.TrimSpace(v) == "" {
		return ctx
	}
	f := fieldsFrom(ctx)
	set(&f)
	return context.WithValue(ctx, ctxKey{}, f)
}

// WithRequestID returns a context whose log lines carry request_id.
func (l *Logger) WithRequestID(ctx context.Context, reqID string) context.Context {
	return with(ctx, func(f *fields) { f.requestID = reqID }, reqID)
}

// WithOwnerID returns a context whose log lines carry owner_id.
func (l *Logger) WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return with(ctx, func(f *fields) { f.ownerID = ownerID }, ownerID)
}

// WithPetID returns a context whose log lines carry pet_id.
func (l *Logger) WithPetID(ctx context.Context, petID string) context.Context {
	return with(ctx, func(f *fields) { f.petID = petID }, petID)
}

// WithDeviceID returns a context whose log lines carry device_id.
func (l *Logger) WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return with(ctx, func(f *fields) { f.deviceID = deviceID }, deviceID)
}

func safeAction(a string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return "unspecified"
	}
	return a
}
