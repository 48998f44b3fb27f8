package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"clearpoint-monitor/internal/types"
)

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a new log-based notifier
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger,
	}
}

// ObserveOnly implements Observer
func (n *LogNotifier) ObserveOnly() bool { return true }

// Send logs the notification at a level matching its severity
func (n *LogNotifier) Send(ctx context.Context, note Notification) error {
	entry := n.logger.WithFields(logrus.Fields{
		"alert_id":    note.AlertID,
		"kind":        string(note.Kind),
		"severity":    string(note.Severity),
		"device_id":   note.DeviceID,
		"device_name": note.DeviceName,
		"customer_id": note.CustomerID,
		"recipient":   note.Recipient,
	})
	if note.Downtime > 0 {
		entry = entry.WithField("downtime", note.Downtime.String())
	}

	message := fmt.Sprintf("[%s] %s", note.Severity, note.Message)

	switch note.Severity {
	case types.SeverityCritical:
		entry.Error(message)
	case types.SeverityHigh:
		entry.Warn(message)
	case types.SeverityMedium:
		entry.Info(message)
	default:
		entry.Info(message)
	}

	return nil
}

// FileNotifier appends notifications as JSON lines for external pickup
type FileNotifier struct {
	logger   *logrus.Logger
	filePath string
	mu       sync.Mutex
}

// NewFileNotifier creates a new file-based notifier
func NewFileNotifier(logger *logrus.Logger, filePath string) *FileNotifier {
	return &FileNotifier{
		logger:   logger,
		filePath: filePath,
	}
}

// Send appends the notification to the file
func (n *FileNotifier) Send(ctx context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	dir := filepath.Dir(n.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create notification directory: %w", err)
	}

	file, err := os.OpenFile(n.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open notification file: %w", err)
	}
	defer file.Close()

	line, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write notification to file: %w", err)
	}

	n.logger.WithFields(logrus.Fields{
		"file":     n.filePath,
		"alert_id": note.AlertID,
	}).Debug("Notification written to file")
	return nil
}

// CompositeNotifier fans a notification out to several notifiers. Observers
// are always called but only delivery channels decide the outcome.
type CompositeNotifier struct {
	notifiers []Notifier
	observers []Notifier
	logger    *logrus.Logger
}

// NewCompositeNotifier creates a new composite notifier
func NewCompositeNotifier(logger *logrus.Logger, notifiers ...Notifier) *CompositeNotifier {
	c := &CompositeNotifier{
		logger: logger,
	}
	for _, n := range notifiers {
		c.AddNotifier(n)
	}
	return c
}

// Send delivers to every child. It fails only if every delivery channel
// failed; observer errors are logged and otherwise ignored.
func (n *CompositeNotifier) Send(ctx context.Context, note Notification) error {
	for i, child := range n.observers {
		if err := child.Send(ctx, note); err != nil {
			n.logger.WithError(err).WithField("observer_index", i).Warn("Observer failed")
		}
	}

	var lastError error
	successCount := 0

	for i, child := range n.notifiers {
		if err := child.Send(ctx, note); err != nil {
			n.logger.WithError(err).WithField("notifier_index", i).Error("Notifier failed")
			lastError = err
		} else {
			successCount++
		}
	}

	if successCount == 0 && lastError != nil {
		return fmt.Errorf("all notifiers failed, last error: %w", lastError)
	}

	return nil
}

// AddNotifier adds a new notifier to the composite
func (n *CompositeNotifier) AddNotifier(notifier Notifier) {
	if o, ok := notifier.(Observer); ok && o.ObserveOnly() {
		n.observers = append(n.observers, notifier)
		return
	}
	n.notifiers = append(n.notifiers, notifier)
}

// Len returns the number of child notifiers, observers included
func (n *CompositeNotifier) Len() int {
	return len(n.notifiers) + len(n.observers)
}
