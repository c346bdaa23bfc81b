package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"whatsapp-router/config"
	"whatsapp-router/internal/handlers"
	"whatsapp-router/internal/models"
	"whatsapp-router/internal/services"
	"whatsapp-router/internal/utils"
)

func newServeCmd(load configLoader) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the provider connection and the idle sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr).")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		a.Close(shutdownCtx)
	}()

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := handlers.NewHTTPMetrics(a.registry)
	a.hub.OnSessionsChanged(httpMetrics.SetSessions)

	if a.whatsapp != nil {
		a.whatsapp.SetHandlers(
			func(ctx context.Context, evt services.InboundEvent) {
				if _, err := a.engine.HandleInbound(ctx, evt); err != nil {
					utils.LogError("Erro ao processar mensagem recebida de %s: %v", evt.FromPhone, err)
				}
			},
			func(ctx context.Context, providerMessageID string, status models.DeliveryStatus) {
				if _, _, err := a.engine.HandleReceipt(ctx, providerMessageID, string(status)); err != nil && !services.IsCode(err, services.ErrorCodeNotFound) {
					utils.LogError("Erro ao processar recibo %s: %v", providerMessageID, err)
				}
			},
		)
		if err := a.whatsapp.Connect(ctx); err != nil {
			utils.LogError("Erro ao conectar ao WhatsApp: %v", err)
		}
	}

	sweeper := services.NewIdleSweeper(a.engine, cfg.Engine.IdleTimeout, cfg.Engine.SweepInterval)
	go sweeper.Run(ctx)

	h := handlers.NewHTTPHandler(a.engine, a.reconciler, a.support, a.manager, normalizerFrom(cfg.Phone))
	ws := handlers.NewWebSocketHandler(a.hub, a.admins, a.engine.Resolver())
	router := handlers.NewRouter(h, ws, httpMetrics)
	router.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	// Configurar CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.LogInfo("Servidor rodando em %s", cfg.Server.Addr)
		utils.LogInfo("Swagger UI disponível em %s/api/v1/swagger-ui/", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	utils.LogInfo("Encerrando servidor...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		utils.LogError("Erro ao encerrar servidor HTTP: %v", err)
	}
	return nil
}
