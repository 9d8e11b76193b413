package sentry

import (
	"time"

	sentry "github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Init configures the global Sentry client. An empty DSN leaves reporting
// disabled; every function here is then a no-op.
func Init(dsn, release string) error {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		TracesSampleRate: 1.0,
	}); err != nil {
		return err
	}
	if dsn == "" {
		log.Debug("sentry disabled, no DSN configured")
	}
	return nil
}

func GetSentryClient() *sentry.Client {
	return sentry.CurrentHub().Client()
}

func GetSentryGin() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{Repanic: true})
}

func ReportError(err error) {
	sentry.CaptureException(err)
}

func SetContext(name string, value map[string]interface{}) {
	sentry.CurrentHub().ConfigureScope(func(scope *sentry.Scope) {
		scope.SetContext(name, value)
	})
}

// Flush waits for buffered events, e.g. before the process exits.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}
