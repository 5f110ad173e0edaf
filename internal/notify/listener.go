package notify

import (
	"time"

	"github.com/lib/pq"

	"github.com/memefeed-labs/memefeed/internal/logging"
)

// Channel is the Postgres notification channel announcing committed content.
const Channel = "new_content"

const (
	minReconnectInterval = 2 * time.Second
	maxReconnectInterval = time.Minute
)

// Listener holds the process-wide subscription to the store's commit stream
// and forwards payloads verbatim to the hub. One Listener per process,
// constructed at startup and owned by the application.
type Listener struct {
	pq   *pq.Listener
	hub  Broadcaster
	log  *logging.Logger
	done chan struct{}
}

// NewListener creates a listener on the given Postgres DSN.
func NewListener(dsn string, hub Broadcaster, log *logging.Logger) *Listener {
	if log == nil {
		log = logging.NewDefault("notify-listener")
	}
	l := &Listener{
		hub:  hub,
		log:  log,
		done: make(chan struct{}),
	}
	l.pq = pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, l.onEvent)
	return l
}

// Start subscribes to the channel and begins forwarding notifications.
func (l *Listener) Start() error {
	if err := l.pq.Listen(Channel); err != nil {
		return err
	}
	go l.run()
	return nil
}

// Stop ends forwarding and closes the subscription.
func (l *Listener) Stop() error {
	close(l.done)
	return l.pq.Close()
}

func (l *Listener) run() {
	for {
		select {
		case <-l.done:
			return
		case n, ok := <-l.pq.Notify:
			if !ok {
				return
			}
			// nil notifications signal a reconnect; nothing was
			// missed that this channel guarantees to deliver.
			if n == nil {
				continue
			}
			l.log.WithField("channel", n.Channel).Debug("notification received")
			l.hub.Broadcast([]byte(n.Extra))
		case <-time.After(90 * time.Second):
			// Periodic liveness check while the channel is quiet.
			go l.pq.Ping()
		}
	}
}

func (l *Listener) onEvent(event pq.ListenerEventType, err error) {
	if err != nil {
		l.log.WithError(err).Warn("commit stream listener event")
	}
}
