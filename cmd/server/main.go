package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"facegate/config"
	"facegate/internal/api"
	"facegate/internal/api/handlers"
	"facegate/internal/api/middleware"
	"facegate/internal/app"
	"facegate/internal/cleanup"
	"facegate/internal/core/processor"
	"facegate/internal/debug"
	"facegate/internal/integrations/homeassistant"
	"facegate/internal/integrations/mqtt"
	"facegate/internal/integrations/opencv"
	"facegate/internal/logger"
	"facegate/internal/server/sse"
	"facegate/internal/services"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	defaultConfigPath = "/config/config.yaml"
	version           = "1.0.0"
)

func main() {
	configPath := os.Getenv("FACEGATE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SSE-Hub für Browser-Clients
	hub := sse.NewHub()
	go hub.Run(ctx)

	// MQTT ist optional
	var mqttClient *mqtt.Client
	var publisher services.MessagePublisher
	if cfg.MQTT.Enabled {
		mqttClient = mqtt.NewClient(cfg.MQTT)
		publisher = mqttClient
	} else {
		log.Info("MQTT is disabled in config.")
	}

	notifier := services.NewNotifierService(hub, publisher)

	// Datenbank, Engine und Bildverarbeitung
	a, err := app.New(cfg, opencv.NewDetector, notifier)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer a.Close()

	log.Info("Loading recognition model...")
	if err := a.LoadModel(ctx); err != nil {
		// Ohne Modell werden alle Anfragen abgelehnt, bis neu trainiert wird
		log.WithError(err).Error("Failed to load or train the recognition model")
	}

	pool := processor.NewWorkerPool(a.Processor, cfg.Recognition.Workers)
	defer pool.Shutdown()

	training := services.NewTrainingService(ctx, a.Engine, a.Repo, notifier.TrainingProgress)

	if mqttClient != nil {
		mqttClient.RegisterHandler(mqtt.CommandHandlerFunc(func(command string, _ []byte) {
			if command == mqtt.CommandRetrain {
				training.Trigger("mqtt")
			}
		}))
		if err := mqttClient.Start(); err != nil {
			log.Warnf("Failed to connect MQTT client: %v. Continuing without MQTT.", err)
		} else if cfg.MQTT.HomeAssistant {
			if err := homeassistant.NewDiscoveryManager(mqttClient, version).Register(); err != nil {
				log.Warnf("Home Assistant discovery incomplete: %v", err)
			}
		}
		defer mqttClient.Stop()

		if cfg.MQTT.HomeAssistant {
			haPublisher := homeassistant.NewPublisher(mqttClient, homeassistant.DefaultResetAfter)
			notifier.AddSink(haPublisher)
			go haPublisher.Run(ctx)
		}
	}

	// Bereinigung des Erkennungsprotokolls
	interval := time.Duration(cfg.Cleanup.IntervalHours) * time.Hour
	cleanupService := cleanup.NewService(a.Repo, cfg.Cleanup.RetentionDays, interval)
	cleanupService.StartBackgroundCleanup()
	defer cleanupService.StopBackgroundCleanup()

	translator, err := middleware.NewTranslator(cfg.I18n.DefaultLanguage)
	if err != nil {
		log.Fatalf("Failed to load translations: %v", err)
	}

	apiHandler := handlers.NewAPIHandler(handlers.Dependencies{
		Repo:        a.Repo,
		Processor:   a.Processor,
		Recognizer:  pool,
		Engine:      a.Engine,
		Training:    training,
		Events:      hub,
		Pool:        pool,
		AutoRetrain: cfg.Recognition.AutoRetrain,
		MaxUpload:   int64(cfg.Server.MaxUploadMB) << 20,
	})
	var extras []api.RouteRegistrar
	if cfg.Detector.DebugImages > 0 {
		debugService := debug.NewService(cfg.Detector.DebugImages)
		a.Processor.SetRecorder(debugService)
		extras = append(extras, debugService)
	}

	router := api.NewRouter(api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadMB:    cfg.Server.MaxUploadMB,
	}, translator, apiHandler, extras...)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error during shutdown: %v", err)
	}
	training.Wait()

	log.Info("Server stopped.")
}
