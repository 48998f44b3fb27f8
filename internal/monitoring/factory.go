package monitoring

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// NotifierConfig selects which built-in notifiers are enabled
type NotifierConfig struct {
	LogEnabled  bool
	FileEnabled bool
	FilePath    string
	Webhook     WebhookConfig
}

// NotifierFactory creates and configures notifiers
type NotifierFactory struct {
	logger *logrus.Logger
}

// NewNotifierFactory creates a new notifier factory
func NewNotifierFactory(logger *logrus.Logger) *NotifierFactory {
	return &NotifierFactory{
		logger: logger,
	}
}

// CreateNotifier builds a composite notifier from configuration. Extra
// notifiers such as queue publishers are appended after the built-in ones.
func (f *NotifierFactory) CreateNotifier(config NotifierConfig, extra ...Notifier) (*CompositeNotifier, error) {
	if err := f.ValidateConfiguration(config); err != nil {
		return nil, err
	}

	composite := NewCompositeNotifier(f.logger)

	if config.LogEnabled {
		composite.AddNotifier(NewLogNotifier(f.logger))
	}

	if config.FileEnabled {
		path := config.FilePath
		if path == "" {
			var err error
			path, err = f.defaultNotificationFilePath()
			if err != nil {
				f.logger.WithError(err).Warn("Could not determine notification file path, skipping file notifier")
			}
		}
		if path != "" {
			composite.AddNotifier(NewFileNotifier(f.logger, path))
		}
	}

	if config.Webhook.URL != "" {
		composite.AddNotifier(NewWebhookNotifier(f.logger, config.Webhook))
	}

	for _, n := range extra {
		if n != nil {
			composite.AddNotifier(n)
		}
	}

	f.logger.WithField("notifiers", composite.Len()).Info("Notifier pipeline configured")
	return composite, nil
}

// ValidateConfiguration validates the notifier configuration
func (f *NotifierFactory) ValidateConfiguration(config NotifierConfig) error {
	if config.Webhook.URL != "" {
		u, err := url.Parse(config.Webhook.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid webhook url: %q", config.Webhook.URL)
		}
		if config.Webhook.Timeout < 0 {
			return fmt.Errorf("webhook timeout must not be negative, got %v", config.Webhook.Timeout)
		}
	}
	return nil
}

// defaultNotificationFilePath picks a per-user data location
func (f *NotifierFactory) defaultNotificationFilePath() (string, error) {
	baseDir := "."
	if home := os.Getenv("HOME"); home != "" {
		baseDir = filepath.Join(home, ".local", "share", "clearpoint-monitor")
	}

	dir := filepath.Join(baseDir, "notifications")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create notification directory: %w", err)
	}

	return filepath.Join(dir, "notifications.jsonl"), nil
}
