package simpleipc

import (
	"log/slog"
	"strings"
	"time"

	"github.com/doughall/rootipc/internal/fileio"
)

const (
	// DefaultReadAttempts is how many times a command file is read before it is abandoned.
	DefaultReadAttempts = 5

	// DefaultReadDelay separates read attempts.
	DefaultReadDelay = 10 * time.Millisecond
)

// CompletePredicate reports whether trimmed, non-empty file content looks
// fully written. It is a cheap heuristic, not a parser.
type CompletePredicate func(content string) bool

// JSONLike accepts content that starts with '{' and ends with '}'.
func JSONLike(content string) bool {
	return strings.HasPrefix(content, "{") && strings.HasSuffix(content, "}")
}

// AnyContent accepts any non-empty content.
func AnyContent(string) bool {
	return true
}

// Direction tells commands and responses apart in an Envelope.
type Direction string

const (
	DirectionCommand  Direction = "command"
	DirectionResponse Direction = "response"
)

// Envelope is one message that passed through the channel.
type Envelope struct {
	Direction Direction `json:"direction"`
	RequestID string    `json:"request_id"`
	Payload   string    `json:"payload"`
	At        time.Time `json:"at"`
}

type options struct {
	logger       *slog.Logger
	fs           fileio.FS
	readAttempts int
	readDelay    time.Duration
	complete     CompletePredicate
	observer     func(Envelope)
}

// Option configures a Channel.
type Option func(*options)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithFS sets the file primitives used for data operations. Default: fileio.Local.
func WithFS(fsys fileio.FS) Option {
	return func(o *options) { o.fs = fsys }
}

// WithReadRetry sets the read retry budget for command files.
func WithReadRetry(attempts int, delay time.Duration) Option {
	return func(o *options) {
		if attempts > 0 {
			o.readAttempts = attempts
		}
		if delay >= 0 {
			o.readDelay = delay
		}
	}
}

// WithCompletePredicate replaces the JSONLike completeness check.
func WithCompletePredicate(p CompletePredicate) Option {
	return func(o *options) {
		if p != nil {
			o.complete = p
		}
	}
}

// WithObserver registers a function called for every delivered command and
// every response written. It runs on the calling goroutine and must not block.
func WithObserver(fn func(Envelope)) Option {
	return func(o *options) { o.observer = fn }
}

func defaultOptions() options {
	return options{
		logger:       slog.Default(),
		fs:           fileio.Local{},
		readAttempts: DefaultReadAttempts,
		readDelay:    DefaultReadDelay,
		complete:     JSONLike,
	}
}
