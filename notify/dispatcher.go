package notify

import (
	"context"
	"sync"
	"time"

	"github.com/kasuganosora/socialgraph/config"
	"go.uber.org/zap"
)

// Sink delivers user notifications.
type Sink interface {
	Deliver(ctx context.Context, ev Event) error
}

// Federator delivers events to a remote domain.
type Federator interface {
	Federate(ctx context.Context, ev Event, domain string) error
}

// Preferences gates which user notifications are sent.
type Preferences struct {
	OnFriendRequest   bool
	OnRequestAccepted bool
	OnFriendRemoved   bool
}

// PreferencesFromConfig reads the notification flags.
func PreferencesFromConfig(cfg config.NotifyConfig) Preferences {
	return Preferences{
		OnFriendRequest:   cfg.OnFriendRequest,
		OnRequestAccepted: cfg.OnRequestAccepted,
		OnFriendRemoved:   cfg.OnFriendRemoved,
	}
}

// Allows reports whether a user notification of type t is wanted.
func (p Preferences) Allows(t EventType) bool {
	switch t {
	case RequestReceived:
		return p.OnFriendRequest
	case RequestAccepted:
		return p.OnRequestAccepted
	case FriendRemoved:
		return p.OnFriendRemoved
	default:
		return false
	}
}

type job struct {
	ev     Event
	domain string // set for federation jobs
}

// Dispatcher queues events and delivers them on a background worker.
type Dispatcher struct {
	sink      Sink
	federator Federator
	prefs     Preferences
	timeout   time.Duration
	logger    *zap.Logger

	ch       chan job
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDispatcher starts a Dispatcher. sink or federator may be nil, in which
// case the matching events are discarded.
func NewDispatcher(sink Sink, federator Federator, prefs Preferences, queueSize int, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	d := &Dispatcher{
		sink:      sink,
		federator: federator,
		prefs:     prefs,
		timeout:   5 * time.Second,
		logger:    logger,
		ch:        make(chan job, queueSize),
		stopCh:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.worker()
	return d
}

// Notify queues a user notification if the preferences allow it.
func (d *Dispatcher) Notify(ev Event) {
	if d.sink == nil || !d.prefs.Allows(ev.Type) {
		return
	}
	d.enqueue(job{ev: ev})
}

// Federate queues ev for delivery to a remote domain.
func (d *Dispatcher) Federate(ev Event, domain string) {
	if d.federator == nil {
		return
	}
	d.enqueue(job{ev: ev, domain: domain})
}

func (d *Dispatcher) enqueue(j job) {
	select {
	case <-d.stopCh:
		return
	default:
	}
	select {
	case d.ch <- j:
	default:
		d.logger.Warn("notify queue full, dropping event",
			zap.String("type", string(j.ev.Type)),
			zap.String("recipient", j.ev.Recipient),
			zap.String("domain", j.domain))
	}
}

// Stop delivers what is queued and shuts down the worker.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case j := <-d.ch:
			d.deliver(j)
		case <-d.stopCh:
			for {
				select {
				case j := <-d.ch:
					d.deliver(j)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	var err error
	if j.domain != "" {
		err = d.federator.Federate(ctx, j.ev, j.domain)
	} else {
		err = d.sink.Deliver(ctx, j.ev)
	}
	if err != nil {
		d.logger.Warn("notify delivery failed",
			zap.String("type", string(j.ev.Type)),
			zap.String("recipient", j.ev.Recipient),
			zap.String("domain", j.domain),
			zap.Error(err))
	}
}
