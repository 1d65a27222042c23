package logging

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// SentryHook forwards error-level entries to Sentry.
type SentryHook struct {
	hub *sentry.Hub
}

func NewSentryHook(hub *sentry.Hub) *SentryHook {
	return &SentryHook{hub: hub}
}

// InitSentry configures the global Sentry client and attaches a hook to log.
// It returns a flush function to defer in main; with an empty DSN it is a
// no-op.
func InitSentry(log *logrus.Logger, dsn, env string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		EnableTracing:    false,
		AttachStacktrace: true,
	}); err != nil {
		return func() {}, fmt.Errorf("failed to init sentry: %w", err)
	}

	log.AddHook(NewSentryHook(sentry.CurrentHub()))

	return func() { sentry.Flush(2 * time.Second) }, nil
}

func (h *SentryHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}
}

func (h *SentryHook) Fire(entry *logrus.Entry) error {
	if h.hub == nil {
		return nil
	}

	h.hub.WithScope(func(scope *sentry.Scope) {
		extra := sentry.Context{}
		for k, v := range entry.Data {
			if k == logrus.ErrorKey {
				continue
			}
			extra[k] = fmt.Sprint(v)
		}
		scope.SetContext("log", extra)
		scope.SetLevel(sentryLevel(entry.Level))

		if err, ok := entry.Data[logrus.ErrorKey].(error); ok {
			scope.SetTag("message", entry.Message)
			h.hub.CaptureException(err)
			return
		}
		h.hub.CaptureMessage(entry.Message)
	})

	return nil
}

func sentryLevel(l logrus.Level) sentry.Level {
	switch l {
	case logrus.PanicLevel, logrus.FatalLevel:
		return sentry.LevelFatal
	case logrus.WarnLevel:
		return sentry.LevelWarning
	case logrus.InfoLevel:
		return sentry.LevelInfo
	case logrus.DebugLevel, logrus.TraceLevel:
		return sentry.LevelDebug
	default:
		return sentry.LevelError
	}
}
