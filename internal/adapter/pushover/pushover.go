package pushover

import (
	"github.com/DeviationLabs/homely-vibes/internal/core/port"

	"github.com/gregdel/pushover"
	"go.uber.org/zap"
)

// Notifier delivers alerts through the Pushover push service. Send
// failures are logged and swallowed so a notification outage never
// takes down the control loop.
type Notifier struct {
	app       *pushover.Pushover
	recipient *pushover.Recipient
	logger    *zap.Logger
}

func NewNotifier(apiToken string, userKey string, logger *zap.Logger) *Notifier {
	return &Notifier{
		app:       pushover.New(apiToken),
		recipient: pushover.NewRecipient(userKey),
		logger:    logger,
	}
}

func (n *Notifier) SendAlert(message string, title string, priority int) bool {
	msg := &pushover.Message{
		Message:  message,
		Title:    title,
		Priority: priority,
	}
	resp, err := n.app.SendMessage(msg, n.recipient)
	if err != nil {
		n.logger.Error("pushover send failed", zap.String("title", title), zap.Error(err))
		return false
	}
	n.logger.Debug("pushover sent",
		zap.String("title", title),
		zap.Int("priority", priority),
		zap.String("request_id", resp.ID))
	return true
}

// NopNotifier drops every alert, used when notifications are not
// configured.
type NopNotifier struct {
	logger *zap.Logger
}

func NewNopNotifier(logger *zap.Logger) *NopNotifier {
	return &NopNotifier{logger: logger}
}

func (n *NopNotifier) SendAlert(message string, title string, priority int) bool {
	n.logger.Info("notification suppressed", zap.String("title", title), zap.String("message", message))
	return true
}

var _ port.NotificationSink = (*Notifier)(nil)
var _ port.NotificationSink = (*NopNotifier)(nil)
