package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"playset/loader"
	"playset/playset"
)

type State string

const (
	Loading State = "loading"
	Ready   State = "ready"
	Failed  State = "failed"
)

// ErrNotReady is returned while no library has been loaded yet.
var ErrNotReady = errors.New("library is not loaded yet")

type Status struct {
	State     State     `json:"state"`
	Songs     int       `json:"songs"`
	Sets      int       `json:"sets"`
	Skipped   []string  `json:"skipped,omitempty"`
	Error     string    `json:"error,omitempty"`
	LoadedAt  time.Time `json:"loaded_at,omitempty"`
	Reloading bool      `json:"reloading"`
}

// Controller owns the library currently served. A reload keeps serving the
// previous library until the new one is complete.
type Controller struct {
	loader  *loader.Loader
	ctx     context.Context
	mutex   sync.RWMutex
	library *playset.Library
	status  Status
	loaded  chan struct{}
	once    sync.Once
	logger  *log.Entry
}

func NewController(l *loader.Loader) *Controller {
	return &Controller{
		loader: l,
		status: Status{State: Loading},
		loaded: make(chan struct{}),
		logger: log.WithFields(log.Fields{
			"module": "controller",
		}),
	}
}

// NewStaticController serves an already built library, e.g. in tests.
func NewStaticController(lib *playset.Library) *Controller {
	c := NewController(nil)
	c.publish(lib, &playset.LoadReport{Items: len(lib.Universal()), Sets: lib.Len()})
	return c
}

// Start begins the first load and listens for its outcome until ctx ends.
// Later reloads run under the same ctx.
func (c *Controller) Start(ctx context.Context) {
	c.mutex.Lock()
	c.ctx = ctx
	c.mutex.Unlock()
	c.listenForLoadEvents(ctx)
	c.loader.Start(ctx)
}

// Reload rescans the library directories in the background.
func (c *Controller) Reload() error {
	if c.loader == nil {
		return errors.New("library was not loaded from disk")
	}
	c.mutex.RLock()
	ctx := c.ctx
	c.mutex.RUnlock()
	if ctx == nil {
		return errors.New("controller was not started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.loader.Start(ctx)
	return nil
}

func (c *Controller) listenForLoadEvents(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-c.loader.Notifications:
				c.handle(n)
			}
		}
	}()
}

func (c *Controller) handle(n loader.Notification) {
	logger := c.logger.WithFields(log.Fields{
		"method": "handle",
		"event":  n.Event,
	})

	switch n.Event {
	case loader.LoadStarted:
		c.mutex.Lock()
		c.status.Reloading = c.library != nil
		c.mutex.Unlock()
		logger.Trace("load started")
	case loader.LoadCompleted:
		c.publish(n.Library, n.Report)
		logger.Infof("serving %d songs and %d sets", n.Report.Items, n.Report.Sets)
	case loader.LoadFailed:
		c.mutex.Lock()
		c.status.Reloading = false
		c.status.Error = n.Error.Error()
		if c.library == nil {
			c.status.State = Failed
		}
		c.mutex.Unlock()
		c.once.Do(func() { close(c.loaded) })
		logger.Warnf("load failed: %v", n.Error)
	case loader.LoadCanceled:
		c.mutex.Lock()
		c.status.Reloading = false
		c.mutex.Unlock()
	}
}

func (c *Controller) publish(lib *playset.Library, report *playset.LoadReport) {
	skipped := make([]string, 0, len(report.Failures))
	for _, f := range report.Failures {
		skipped = append(skipped, f.Error())
	}

	c.mutex.Lock()
	c.library = lib
	c.status = Status{
		State:    Ready,
		Songs:    report.Items,
		Sets:     report.Sets,
		Skipped:  skipped,
		LoadedAt: time.Now(),
	}
	c.mutex.Unlock()
	c.once.Do(func() { close(c.loaded) })
}

// Library returns the library being served.
func (c *Controller) Library() (*playset.Library, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if c.library == nil {
		return nil, ErrNotReady
	}
	return c.library, nil
}

func (c *Controller) Status() Status {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	s := c.status
	if c.library != nil {
		s.Sets = c.library.Len()
	}
	return s
}

// WaitLoaded blocks until the first load has finished either way.
func (c *Controller) WaitLoaded(ctx context.Context) error {
	select {
	case <-c.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
