package journal

import (
	"log/slog"

	"github.com/doughall/rootipc/internal/simpleipc"
)

// Recorder adapts a Journal to the channels' observer hooks. Write failures
// are logged; they never reach the channel.
type Recorder struct {
	journal *Journal
	keep    int
	logger  *slog.Logger
}

// NewRecorder creates a Recorder. keep > 0 prunes the journal to that many
// entries after every 100 records.
func NewRecorder(j *Journal, keep int, logger *slog.Logger) *Recorder {
	return &Recorder{
		journal: j,
		keep:    keep,
		logger:  logger.With(slog.String("component", "journal")),
	}
}

// ObserveCommand records directory-channel traffic; pass it to simpleipc.WithObserver.
func (r *Recorder) ObserveCommand(env simpleipc.Envelope) {
	r.record(&Entry{
		Channel:   "dir",
		Direction: string(env.Direction),
		RequestID: env.RequestID,
		Payload:   env.Payload,
		At:        env.At,
	})
}

// ObserveSocket records a message read from a file socket.
func (r *Recorder) ObserveSocket(content string) {
	r.record(&Entry{
		Channel:   "socket",
		Direction: string(simpleipc.DirectionCommand),
		Payload:   content,
	})
}

func (r *Recorder) record(e *Entry) {
	if err := r.journal.Record(e); err != nil {
		r.logger.Warn("failed to record entry", slog.String("error", err.Error()))
		return
	}
	if r.keep > 0 && e.ID%100 == 0 {
		if n, err := r.journal.Prune(r.keep); err != nil {
			r.logger.Warn("failed to prune journal", slog.String("error", err.Error()))
		} else if n > 0 {
			r.logger.Debug("pruned journal", slog.Int("removed", n))
		}
	}
}

// Count returns the journal size, or 0 if it cannot be read.
func (r *Recorder) Count() int {
	n, err := r.journal.Count()
	if err != nil {
		return 0
	}
	return n
}
