package notify

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

var _ driven.Notifier = (*LogNotifier)(nil)

// LogNotifier records notifications in the log instead of sending them. It
// is used when no mail server is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the recipient and subject. The body is not logged.
func (l *LogNotifier) Notify(ctx context.Context, n model.Notification) error {
	l.logger.InfoContext(ctx, "notification not sent, smtp disabled", "to", n.To, "subject", n.Subject)
	return nil
}
