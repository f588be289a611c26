package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"iot-relay/internal/bus"
	"iot-relay/internal/config"
	"iot-relay/internal/hub"
	"iot-relay/internal/logger"
	"iot-relay/internal/registry"
	"iot-relay/internal/relay"
	"iot-relay/internal/server"
)

type Application struct {
	config *config.Config

	registry   *registry.Registry
	hub        *hub.Hub
	service    *relay.Service
	busManager *bus.Manager
	server     *server.Server

	serverErr    chan error
	shutdownChan chan os.Signal
	ctx          context.Context
	cancelFunc   context.CancelFunc
}

func main() {
	app := &Application{}

	if err := app.initialize(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}

	if err := app.run(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run application")
	}
}

func (app *Application) initialize() error {
	var err error

	app.config, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.NewLogger(app.config.Logger)
	log.Info().
		Str("component", "main").
		Str("version", "1.0.0").
		Msg("Setting up service...")

	app.ctx, app.cancelFunc = context.WithCancel(context.Background())
	app.shutdownChan = make(chan os.Signal, 1)
	app.serverErr = make(chan error, 1)
	signal.Notify(app.shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	app.registry = registry.New(app.config.Registry.MaxScans)
	app.hub = hub.New(logger.GetLogger("hub"))
	app.service = relay.New(app.registry, app.hub, logger.GetLogger("relay"))

	app.busManager = bus.NewManager(
		app.config.MQTT,
		app.service.OnBusStatus,
		logger.GetLogger("bus-manager"),
	)
	app.service.SetStatusSource(app.busManager.Status)

	app.server = server.New(
		app.config.Server,
		app.service,
		app.busManager,
		logger.GetLogger("server"),
	)

	log.Info().Msg("Successfully initialized application")
	return nil
}

func (app *Application) run() error {
	go app.service.Run(app.ctx, app.busManager.Inbound())

	go func() {
		app.serverErr <- app.server.Start()
	}()

	if app.config.MQTT.Broker != "" {
		app.connectBus()
	}

	select {
	case sig := <-app.shutdownChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-app.serverErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server stopped unexpectedly")
		}
	case <-app.ctx.Done():
		log.Info().Msg("context cancelled, shutting down application")
	}

	return app.shutdown()
}

// connectBus performs the optional startup connection. Failures are not
// fatal: the bus stays reachable through the control surface.
func (app *Application) connectBus() {
	req := bus.ConnectRequest{
		BrokerURL: app.config.MQTT.Broker,
		GPSTopic:  app.config.MQTT.GPSTopic,
		RFIDTopic: app.config.MQTT.RFIDTopic,
		Username:  app.config.MQTT.Username,
		Password:  app.config.MQTT.Password,
	}

	if err := app.busManager.Connect(app.ctx, req); err != nil {
		log.Error().Err(err).Str("broker", req.BrokerURL).Msg("Startup bus connection failed")
	}
}

func (app *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	if app.server != nil {
		if err := app.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down HTTP server")
		}
	}

	if app.busManager != nil {
		app.busManager.Disconnect()
	}

	app.cancelFunc()
	return nil
}
