package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/control"
	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/camera"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/hardware"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/mesh"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/storage"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/uplink"
	"github.com/janael-pinheiro/trap-module-golang/pkg/logging"
	"github.com/janael-pinheiro/trap-module-golang/pkg/observability"
	"github.com/janael-pinheiro/trap-module-golang/pkg/store"
	"github.com/janael-pinheiro/trap-module-golang/pkg/task"
	"github.com/janael-pinheiro/trap-module-golang/pkg/trap"
	"github.com/janael-pinheiro/trap-module-golang/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "configs/trapnode.yaml", "runtime configuration file")
	envFile := flag.String("env", ".env", "environment file loaded before the configuration")
	nodeID := flag.Uint("node-id", 1, "mesh node id of this module")
	tick := flag.Duration("tick", 100*time.Millisecond, "update loop period")
	volts := flag.Float64("battery", 4.1, "initial simulated battery voltage")
	drain := flag.Float64("drain", 0.05, "simulated battery drain in volts per day")
	noCamera := flag.Bool("no-camera", false, "run without a camera")
	jsonLogs := flag.Bool("json-logs", false, "log with the JSON formatter")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("failed to load %s: %v", *envFile, err)
	}
	conf, err := utils.LoadRuntimeConfig(*configPath)
	if err != nil {
		logrus.Fatalf("failed to read configuration: %v", err)
	}

	loggers := logging.NewLogrus(conf.LogLevel, os.Stdout).WithNode(uint32(*nodeID))
	if *jsonLogs {
		loggers = loggers.WithJSON()
	}
	log := loggers.Get("Main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	documents, closeDocuments, err := openDocuments(conf.Storage, loggers.Get("Storage"))
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer closeDocuments()

	delivery, broker, stopUplink := openUplink(conf, loggers.Get("Uplink"))
	defer stopUplink()

	registry := prometheus.NewRegistry()
	metrics, err := observability.NewProtocolCollector(registry)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}

	clock := task.NewAdjustableClock(task.NewSystemClock())
	module := trap.New(conf, trap.Dependencies{
		NodeID:    uint32(*nodeID),
		Network:   mesh.NewHub(0, time.Now().UnixNano(), loggers.Get("Mesh")),
		Store:     store.New(documents, entities.DefaultStatePath, loggers.Get("Store")),
		Documents: documents,
		Camera:    camera.NewSimulatedCamera(documents, entities.DefaultImagePath, !*noCamera, loggers.Get("Camera")),
		Uplink:    delivery,
		Sensors:   hardware.NewSimulatedSensors(clock, *volts, *drain),
		Board:     hardware.NewProcessBoard(loggers.Get("Board")),
		Clock:     clock,
		Metrics:   metrics,
		Log:       loggers.Get("Trap"),
	})

	if broker != nil {
		settings := make(chan uplink.InMsg)
		subscriber := uplink.NewSettingsSubscriber(broker, conf.Uplink.Exchange)
		if err := subscriber.SubscribeToSettings(uint32(*nodeID), settings); err != nil {
			log.Errorf("remote settings unavailable: %v", err)
		} else {
			go uplink.ApplySettings(ctx, settings, module.SetConfig, loggers.Get("Settings"))
		}
	}

	server := control.NewServer(module, metrics.Handler(), loggers.Get("Control"))
	go func() {
		if err := server.ListenAndServe(ctx, conf.ControlListen); err != nil {
			log.Errorf("control surface stopped: %v", err)
		}
	}()

	log.Infof("module %d starting", *nodeID)
	if err := module.Run(ctx, *tick); err != nil && err != context.Canceled {
		log.Errorf("module stopped: %v", err)
	}
	log.Info("module stopped")
}

func openDocuments(conf entities.StorageConfig, log *logrus.Entry) (storage.DocumentStore, func(), error) {
	switch conf.Driver {
	case "sqlite":
		documents, closeFn, err := storage.NewSQLiteStore(filepath.Join(conf.Path, "trap.db"), log)
		if err != nil {
			return nil, nil, err
		}
		return documents, func() {
			if err := closeFn(); err != nil {
				log.Warnf("failed to close database: %v", err)
			}
		}, nil
	case "memory":
		return storage.NewMemoryStore(), func() {}, nil
	default:
		return storage.NewFileStore(conf.Path, log), func() {}, nil
	}
}

// openUplink connects to the collector broker. Without a broker reports are only logged
// and no broker is returned.
func openUplink(conf entities.RuntimeConfig, log *logrus.Entry) (uplink.Uplink, uplink.Messaging, func()) {
	if conf.Uplink.URL == "" {
		log.Info("no collector configured, reports are logged")
		return uplink.NewLogUplink(log), nil, func() {}
	}
	handler := uplink.NewAMQPHandler(uplink.NewAmqpConnection(conf.Uplink.URL), log)
	if err := handler.Start(); err != nil {
		log.Errorf("collector unreachable, reports are logged: %v", err)
		return uplink.NewLogUplink(log), nil, func() {}
	}
	options := uplink.Options{
		Exchange:      conf.Uplink.Exchange,
		UserToken:     conf.Uplink.UserToken,
		RetryInterval: conf.Timing.RetryInterval,
		Retries:       uint64(conf.Timing.RetryIterations),
	}
	return uplink.NewAMQPUplink(handler, options, log), handler, func() {
		if err := handler.Stop(); err != nil {
			log.Warnf("failed to close collector connection: %v", err)
		}
	}
}
