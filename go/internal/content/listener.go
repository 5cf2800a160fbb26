package content

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to drop the whole cache in case notifications were missed
	PingInterval     time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    "trivia_content_changed",
		FallbackInterval: 5 * time.Minute,
		PingInterval:     90 * time.Second,
	}
}

// Invalidator is what the listener needs from the cache owner.
type Invalidator interface {
	Invalidate(categoryID string)
}

// notifier abstracts pq.Listener so tests can feed notifications.
type notifier interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// Listener invalidates cached questions when the content tables change.
type Listener struct {
	listener notifier
	cache    Invalidator
	cfg      ListenerConfig
}

func NewListener(cache Invalidator, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("content listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for content changes")

	return &Listener{
		listener: l,
		cache:    cache,
		cfg:      cfg,
	}, nil
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("content listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	fallbackTicker := time.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	notes := l.listener.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("content listener shutting down")
			return l.listener.Close()
		case note := <-notes:
			l.handleNotification(note)
		case <-fallbackTicker.C:
			l.cache.Invalidate("")
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping content listener")
			}
		}
	}
}

// handleNotification invalidates the category named in the payload. A nil
// notification means the connection was re-established and anything may
// have changed in between.
func (l *Listener) handleNotification(note *pq.Notification) {
	if note == nil {
		log.Warn().Msg("content listener reconnected, dropping question cache")
		l.cache.Invalidate("")
		return
	}
	log.Debug().Str("category_id", note.Extra).Msg("content changed")
	l.cache.Invalidate(note.Extra)
}
