package loader

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"playset/database"
	"playset/metrics"
	"playset/playset"
	"playset/sentryhelper"
)

type NotificationType string

const (
	LoadStarted   NotificationType = "started"
	LoadCompleted NotificationType = "completed"
	LoadFailed    NotificationType = "failed"
	LoadCanceled  NotificationType = "canceled"
)

type Notification struct {
	Event   NotificationType
	Library *playset.Library
	Report  *playset.LoadReport
	Error   error
}

// Loader builds libraries in the background. Only one load runs at a time;
// starting a new one cancels the previous load, whose result is dropped.
type Loader struct {
	mutex         sync.Mutex
	cancel        context.CancelFunc
	generation    int
	wg            sync.WaitGroup
	opts          playset.LoadOptions
	history       *database.Database
	Notifications chan Notification
	logger        *log.Entry
}

// NewLoader creates a loader. history may be nil, in which case loads are
// not recorded.
func NewLoader(opts playset.LoadOptions, history *database.Database) *Loader {
	return &Loader{
		opts:          opts,
		history:       history,
		Notifications: make(chan Notification, 100),
		logger: log.WithFields(log.Fields{
			"module": "library-loader",
		}),
	}
}

func (l *Loader) Start(ctx context.Context) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.cancel != nil {
		l.logger.Debug("canceling running load")
		l.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.generation++
	generation := l.generation
	opts := l.opts

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer cancel()
		l.load(ctx, opts, generation)
	}()
}

// Cancel abandons the running load, if any.
func (l *Loader) Cancel() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

// Wait blocks until every started load has finished.
func (l *Loader) Wait() {
	l.wg.Wait()
}

func (l *Loader) current(generation int) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.generation == generation
}

func (l *Loader) load(ctx context.Context, opts playset.LoadOptions, generation int) {
	ctx, transaction := sentryhelper.StartTransaction(ctx, "load", "")
	defer transaction.Finish()

	l.logger.Debugf("starting load of %s", opts.ItemsDir)
	l.Notifications <- Notification{Event: LoadStarted}

	lib, report, err := playset.Load(ctx, opts)

	switch {
	case errors.Is(err, context.Canceled) || (err == nil && !l.current(generation)):
		l.logger.Debug("load canceled")
		metrics.LoadsTotal.WithLabelValues("canceled").Inc()
		l.Notifications <- Notification{Event: LoadCanceled}
		return
	case err != nil:
		l.logger.Errorf("library load failed: %v", err)
		metrics.LoadsTotal.WithLabelValues("error").Inc()
		sentryhelper.CaptureException(ctx, err)
		l.Notifications <- Notification{Event: LoadFailed, Error: err}
		return
	}

	metrics.LoadsTotal.WithLabelValues("ok").Inc()
	metrics.LoadDuration.Observe(report.Elapsed.Seconds())
	metrics.LoadFailures.Add(float64(len(report.Failures)))
	metrics.Songs.Set(float64(report.Items))
	metrics.Sets.Set(float64(report.Sets))

	for _, f := range report.Failures {
		sentryhelper.AddBreadcrumb(ctx, "load", f.Error())
	}
	if len(report.Failures) > 0 {
		sentryhelper.CaptureMessage(ctx, report.Err().Error())
	}

	if l.history != nil {
		if err := l.history.RecordLoad(report.Items, report.Sets, len(report.Failures), report.Elapsed); err != nil {
			l.logger.Warnf("failed to record load: %v", err)
		}
	}

	l.Notifications <- Notification{
		Event:   LoadCompleted,
		Library: lib,
		Report:  report,
	}
}
