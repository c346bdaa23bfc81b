package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"whatsapp-router/config"
	"whatsapp-router/internal/notifier"
	"whatsapp-router/internal/phone"
	"whatsapp-router/internal/repositories"
	"whatsapp-router/internal/services"
	"whatsapp-router/internal/utils"
	"whatsapp-router/internal/wsnotify"
)

// app is the wired object graph shared by the commands.
type app struct {
	cfg        *config.Config
	db         *sql.DB
	registry   *prometheus.Registry
	metrics    *services.Metrics
	hub        *wsnotify.Hub
	bus        *notifier.Bus
	transport  services.Transport
	whatsapp   *services.WhatsAppTransport
	manager    *services.ConnectionManager
	engine     *services.Engine
	reconciler *services.Reconciler
	support    *services.SupportService
	admins     *repositories.SQLAdminRepository
	closers    []func()
}

func normalizerFrom(cfg config.PhoneConfig) phone.Normalizer {
	n := phone.Normalizer{CountryCode: cfg.CountryCode, DomesticLengths: cfg.DomesticLengths}
	if n.CountryCode == "" || len(n.DomesticLengths) == 0 {
		return phone.Default
	}
	return n
}

func thresholdsFrom(cfg config.HealthThresholds) services.HealthThresholds {
	return services.HealthThresholds{
		PendingBacklog:     cfg.PendingBacklog,
		HighVolume:         cfg.HighVolume,
		HealthyRate:        cfg.HealthyRate,
		LowRate:            cfg.LowRate,
		LowRateMinOutbound: cfg.LowRateMinOutbound,
	}
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := config.ConnectDatabase(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := repositories.Migrate(ctx, db, cfg.Database.Driver); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// buildSinks connects the optional brokers. A broker that cannot be reached
// is logged and left out.
func (a *app) buildSinks(ctx context.Context) []notifier.Sink {
	sinks := []notifier.Sink{a.hub}
	bus := a.cfg.Bus

	if bus.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: bus.Redis.Addr, Password: bus.Redis.Password, DB: bus.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			utils.LogError("Erro ao conectar ao Redis em %s: %v", bus.Redis.Addr, err)
			client.Close()
		} else {
			sinks = append(sinks, notifier.NewRedisSink(client, bus.Redis.ChannelPrefix))
			a.closers = append(a.closers, func() { client.Close() })
		}
	}

	if bus.NATS.Enabled {
		conn, err := nats.Connect(bus.NATS.URL, nats.Name("whatsapp-router"))
		if err != nil {
			utils.LogError("Erro ao conectar ao NATS em %s: %v", bus.NATS.URL, err)
		} else {
			sinks = append(sinks, notifier.NewNATSSink(conn, bus.NATS.SubjectPrefix))
			a.closers = append(a.closers, func() { conn.Drain() })
		}
	}

	if bus.AMQP.Enabled {
		sink, err := notifier.NewAMQPSink(bus.AMQP.URL, bus.AMQP.Exchange)
		if err != nil {
			utils.LogError("Erro ao conectar ao AMQP: %v", err)
		} else {
			sinks = append(sinks, sink)
			a.closers = append(a.closers, func() { sink.Close() })
		}
	}
	return sinks
}

func (a *app) buildTransport() (services.Transport, error) {
	switch a.cfg.Transport.Driver {
	case "http":
		client := &http.Client{Timeout: a.cfg.Transport.HTTP.Timeout}
		return services.NewHTTPTransport(a.cfg.Transport.HTTP.BaseURL, a.cfg.Transport.HTTP.Token, client), nil
	case "whatsmeow":
		a.manager = services.NewConnectionManager(time.Now)
		a.whatsapp = services.NewWhatsAppTransport(a.cfg.WhatsApp.SessionFile, a.cfg.WhatsApp.DeviceName, a.manager)
		return a.whatsapp, nil
	case "none":
		return services.DisabledTransport{}, nil
	}
	return nil, fmt.Errorf("unsupported transport driver %q", a.cfg.Transport.Driver)
}

// newApp wires repositories, notifier, transport and services. withBrokers
// is false for one-shot commands that should not publish anywhere.
func newApp(ctx context.Context, cfg *config.Config, withBrokers bool) (*app, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, db: db, registry: prometheus.NewRegistry(), hub: wsnotify.NewHub()}
	a.metrics = services.NewMetrics(a.registry)

	var sinks []notifier.Sink
	if withBrokers {
		sinks = a.buildSinks(ctx)
	}
	a.bus = notifier.NewBus(notifier.BusOptions{
		MaxAttempts:  cfg.Bus.MaxAttempts,
		RetryBackoff: cfg.Bus.RetryBackoff,
	}, sinks...)
	a.bus.OnDelivery(a.metrics.SinkDelivery)

	if withBrokers {
		a.transport, err = a.buildTransport()
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
	} else if cfg.Transport.Driver == "http" {
		a.transport, _ = a.buildTransport()
	} else {
		a.transport = services.DisabledTransport{}
	}

	a.admins = repositories.NewSQLAdminRepository(db)
	clients := repositories.NewSQLClientRepository(db)
	a.engine = services.NewEngine(services.EngineDeps{
		Conversations: repositories.NewSQLConversationRepository(db),
		Messages:      repositories.NewSQLMessageRepository(db),
		Admins:        a.admins,
		Departments:   repositories.NewSQLDepartmentRepository(db),
		Clients:       clients,
		Transport:     a.transport,
		Publisher:     a.bus,
		Normalizer:    normalizerFrom(cfg.Phone),
		Metrics:       a.metrics,
	}, services.EngineOptions{
		SendTimeout:    cfg.Engine.SendTimeout,
		MaxMenuRetries: cfg.Engine.MaxMenuRetries,
		MenuHeader:     cfg.Engine.MenuHeader,
		ClosingMessage: cfg.Engine.ClosingMessage,
		IdleMessage:    cfg.Engine.IdleMessage,
		RouterAddress:  cfg.Engine.RouterAddress,
	})
	a.reconciler = services.NewReconciler(a.engine, a.transport, services.ReconcilerOptions{
		Window:      cfg.Health.Window,
		PollTimeout: cfg.Health.PollTimeout,
		Thresholds:  thresholdsFrom(cfg.Health.Thresholds),
	})

	var uploader services.Uploader
	if cfg.S3Config.Enabled {
		s3Service, err := services.NewS3Service(cfg.S3Config)
		if err != nil {
			utils.LogError("Erro ao criar serviço S3: %v", err)
		} else {
			uploader = s3Service
		}
	}
	a.support = services.NewSupportService(repositories.NewSQLSupportMessageRepository(db), clients, uploader, a.bus, time.Now)
	return a, nil
}

func (a *app) Close(ctx context.Context) {
	if a.whatsapp != nil {
		a.whatsapp.Disconnect()
	}
	if a.bus != nil {
		if err := a.bus.Close(ctx); err != nil {
			utils.LogWarning("Eventos pendentes descartados no encerramento: %v", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.db != nil {
		a.db.Close()
	}
}
