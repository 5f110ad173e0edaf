// Package runtime assembles the feed service: database, live feed, ledger
// mirror, services and the HTTP server.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/memefeed-labs/memefeed/internal/app/httpapi"
	"github.com/memefeed-labs/memefeed/internal/app/metrics"
	"github.com/memefeed-labs/memefeed/internal/app/services/memes"
	"github.com/memefeed-labs/memefeed/internal/app/services/rooms"
	"github.com/memefeed-labs/memefeed/internal/app/services/users"
	"github.com/memefeed-labs/memefeed/internal/app/storage/postgres"
	"github.com/memefeed-labs/memefeed/internal/config"
	"github.com/memefeed-labs/memefeed/internal/imagestore"
	"github.com/memefeed-labs/memefeed/internal/ledger"
	"github.com/memefeed-labs/memefeed/internal/logging"
	"github.com/memefeed-labs/memefeed/internal/middleware"
	"github.com/memefeed-labs/memefeed/internal/notify"
	"github.com/memefeed-labs/memefeed/internal/session"
)

// Application owns every long-lived component and their shutdown order.
type Application struct {
	cfg      *config.Config
	log      *logging.Logger
	db       *sqlx.DB
	hub      *notify.Hub
	listener *notify.Listener
	mirror   *ledger.Mirror
	server   *http.Server

	Users *users.Service
	Rooms *rooms.Service
	Memes *memes.Service
}

// New wires the application from configuration. The database is migrated
// before any component starts.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logging.New("memefeed", cfg.Logging.Level, cfg.Logging.Format)

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	if err := postgres.Apply(ctx, db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	store := postgres.New(db)

	hub := notify.NewHub(log.WithField("component", "notify"))
	listener := notify.NewListener(cfg.Database.DSN, hub, log.WithField("component", "listener"))

	submitter := ledger.NewClient(ledger.ClientConfig{
		NodeURL:   cfg.Ledger.NodeURL,
		AuthToken: cfg.Ledger.AuthToken,
		GasPrice:  cfg.Ledger.GasPrice,
		Timeout:   time.Duration(cfg.Ledger.SubmitTimeout) * time.Second,
	})
	mirror := ledger.NewMirror(ledger.MirrorConfig{
		Submitter: submitter,
		Store:     store,
		Logger:    log.WithField("component", "mirror"),
		Workers:   cfg.Ledger.Workers,
		QueueSize: cfg.Ledger.QueueSize,
		Timeout:   time.Duration(cfg.Ledger.SubmitTimeout) * time.Second,
	})

	uploader := imagestore.NewClient(imagestore.ClientConfig{
		BaseURL:   cfg.Storage.BaseURL,
		PublicURL: cfg.Storage.PublicURL,
		Bucket:    cfg.Storage.Bucket,
		AuthToken: cfg.Storage.AuthToken,
	})

	sessions := session.NewManager(cfg.Session.Secret, cfg.Session.TTL())

	userSvc := users.New(store, mirror, log.WithField("component", "users"))
	roomSvc := rooms.New(store, sessions, mirror, log.WithField("component", "rooms"))
	memeSvc := memes.New(store, uploader, roomSvc, mirror, log.WithField("component", "memes"))

	api := httpapi.NewHandler(httpapi.Config{
		Users:    userSvc,
		Rooms:    roomSvc,
		Memes:    memeSvc,
		Sessions: sessions,
		LiveFeed: hub,
		Logger:   log.WithField("component", "httpapi"),
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", api)

	cors := middleware.NewCORSMiddleware(cfg.Server.AllowedOrigins)
	tracing := middleware.NewTracingMiddleware(log.WithField("component", "http"))
	root := tracing.Handler(cors.Handler(metrics.InstrumentHandler(mux)))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	return &Application{
		cfg:      cfg,
		log:      log,
		db:       db,
		hub:      hub,
		listener: listener,
		mirror:   mirror,
		server:   server,
		Users:    userSvc,
		Rooms:    roomSvc,
		Memes:    memeSvc,
	}, nil
}

// Run starts the mirror workers, the change listener and the HTTP server,
// then blocks until the server stops.
func (a *Application) Run() error {
	a.mirror.Start()

	if err := a.listener.Start(); err != nil {
		return fmt.Errorf("start change listener: %w", err)
	}

	a.log.WithField("addr", a.server.Addr).Info("server listening")
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the HTTP server, then stops the listener, the live feed,
// the mirror workers and finally the database pool. The listener stops
// before the hub so no notification arrives for a closing hub.
func (a *Application) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)

	if stopErr := a.listener.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	a.hub.Close()
	a.mirror.Stop()

	if closeErr := a.db.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
