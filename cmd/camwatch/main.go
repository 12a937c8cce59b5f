package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/camwatch/internal/api"
	"github.com/technosupport/camwatch/internal/cameras"
	"github.com/technosupport/camwatch/internal/config"
	"github.com/technosupport/camwatch/internal/detection"
	"github.com/technosupport/camwatch/internal/detector"
	"github.com/technosupport/camwatch/internal/events"
	"github.com/technosupport/camwatch/internal/frames"
	"github.com/technosupport/camwatch/internal/health"
	"github.com/technosupport/camwatch/internal/middleware"
	"github.com/technosupport/camwatch/internal/platform/paths"
	"github.com/technosupport/camwatch/internal/platform/windows"
	"github.com/technosupport/camwatch/internal/settings"
	"github.com/technosupport/camwatch/internal/streams"
)

const serviceName = "camwatch"

func main() {
	configPath := flag.String("config", "", "path to camwatch.yaml")
	flag.Parse()

	// 1. Environment & Config
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[Config] .env not loaded: %v", err)
	}
	if err := paths.EnsureDirs(); err != nil {
		log.Fatalf("Platform init error: %v", err)
	}
	cfg, err := config.Load(paths.ResolveConfigPath(*configPath))
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if windows.IsWindowsService() {
		go func() {
			if err := windows.RunAsService(serviceName, stop); err != nil {
				log.Printf("Service run error: %v", err)
				stop()
			}
		}()
	}

	// 2. Settings
	store := settings.NewStore(paths.ResolveSettingsPath())
	if err := store.Load(); err != nil {
		log.Printf("[Settings] using defaults: %v", err)
	}
	store.StartWatcher(ctx)

	// 3. Discovery
	prober := health.NewTCPProber(cfg.Discovery.ProbeTimeout())
	registry := cameras.NewRegistry(cameras.RegistryConfig{
		Host:          cfg.Discovery.Host,
		BasePort:      cfg.Discovery.BasePort,
		Candidates:    cfg.Discovery.Candidates,
		MissCacheSize: cfg.Discovery.MissCacheSize,
		MissCacheTTL:  cfg.Discovery.MissCacheTTL(),
	}, prober, health.NewHTTPChecker(cfg.Discovery.HTTPTimeout()), store)

	found := registry.Discover(ctx)
	log.Printf("[Discovery] %d cameras found at startup", len(found))
	go registry.RunRescans(ctx, cfg.Discovery.RescanInterval())

	// 4. Streams
	transformer := frames.NewTransformer(cfg.Streams.JPEGQuality)
	conns := streams.NewConnectionRegistry()
	proxy := streams.NewProxy(streams.ProxyConfig{
		Host:        cfg.Discovery.Host,
		ChunkSize:   cfg.Streams.ChunkSize,
		DialTimeout: cfg.Streams.DialTimeout(),
	}, registry, store, prober, conns, frames.NewFPSTable(cfg.Streams.FPSWindow), transformer)

	sweeper := streams.NewSweeper(streams.SweeperConfig{
		Interval: cfg.Streams.SweepInterval(),
		MaxIdle:  cfg.Streams.MaxIdle(),
	}, conns)
	sweeper.Start()

	// 5. Detection
	fileStore := detection.NewFileStore(paths.ResolveEvidenceDir())
	var evidence detection.EvidenceStore = fileStore
	if cfg.Evidence.MinIOEndpoint != "" {
		putter, err := detection.NewMinIOPutter(ctx, detection.MinIOConfig{
			Endpoint:  cfg.Evidence.MinIOEndpoint,
			AccessKey: cfg.Evidence.MinIOAccessKey,
			SecretKey: cfg.Evidence.MinIOSecretKey,
			Bucket:    cfg.Evidence.MinIOBucket,
			UseSSL:    cfg.Evidence.MinIOUseSSL,
		})
		if err != nil {
			log.Printf("[Evidence] minio disabled: %v", err)
		} else {
			evidence = detection.NewMirroredStore(fileStore, putter, cfg.Evidence.MinIOBucket)
		}
	}

	var status api.DetectionStatus
	var scheduler *detection.Scheduler
	fanout, closeSinks := buildSinks(cfg.Events)
	defer closeSinks()

	if cfg.Detection.Enabled {
		det, err := detector.New(cfg.Detector, transformer)
		switch {
		case err != nil:
			log.Printf("[Detection] disabled: %v", err)
		case det == nil:
			log.Printf("[Detection] disabled: detector backend is none")
		case isGemini(cfg.Detector.Backend) && cfg.Detector.GeminiAPIKey == "":
			log.Printf("[Detection] disabled: GEMINI_API_KEY is not set")
		default:
			detLog, closeLog := detectionLogger()
			defer closeLog()

			engine := detection.NewEngine(detection.EngineConfig{
				CaptureTimeout:  cfg.Detection.CaptureTimeout(),
				MinSaveInterval: cfg.Detection.MinSaveInterval(),
				StatsEvery:      cfg.Detection.StatsEvery,
			}, registry, transformer, det, evidence, detLog)
			if fanout.Len() > 0 {
				engine.SetPublisher(fanout)
			}
			status = engine

			ids := detection.IDSource(registry.IDs)
			if len(cfg.Detection.Cameras) > 0 {
				ids = detection.StaticIDs(cfg.Detection.Cameras)
			}
			scheduler = detection.NewScheduler(detection.SchedulerConfig{
				Interval:     cfg.Detection.Interval(),
				SummaryEvery: cfg.Detection.SummaryEveryCycles,
				RetryDelay:   cfg.Detection.RetryDelay(),
			}, engine, ids, detLog)
			scheduler.Start(ctx)
			log.Printf("[Detection] using %s backend", det.Name())
		}
	}

	// 6. Routing
	r := newRouter(api.NewHandler(proxy, registry, store, status, fileStore).Register)

	// 7. Start Server
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("camwatch listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// 8. Graceful Shutdown
	<-ctx.Done()
	log.Printf("shutting down")

	if scheduler != nil {
		scheduler.Stop()
	}
	sweeper.Stop()
	if n := conns.CloseAll(); n > 0 {
		log.Printf("[Proxy] closed %d active streams", n)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// newRouter builds the middleware stack plus /healthz and /metrics, then
// lets each register func add its routes.
func newRouter(register ...func(chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	for _, reg := range register {
		reg(r)
	}
	return r
}

func isGemini(backend string) bool {
	b := strings.ToLower(backend)
	return b == "" || b == "gemini"
}

// detectionLogger writes detection output to stderr and
// logs/person_detection.log.
func detectionLogger() (*log.Logger, func()) {
	path := filepath.Join(paths.ResolveLogsDir(), "person_detection.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		log.Printf("[Detection] log file unavailable: %v", err)
		return log.New(os.Stderr, "", log.LstdFlags), func() {}
	}
	return log.New(io.MultiWriter(os.Stderr, f), "", log.LstdFlags), func() { f.Close() }
}

// buildSinks connects whichever event sinks are configured. Unreachable
// brokers are logged and skipped.
func buildSinks(cfg config.EventsConfig) (*events.Fanout, func()) {
	var sinks []events.Sink
	var closers []func()

	if cfg.NATSURL != "" {
		nc, err := events.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Printf("[Events] NATS disabled: %v", err)
		} else {
			sinks = append(sinks, events.NewNATSSink(nc, cfg.NATSSubjectPrefix, cfg.PublishRetryMax))
			closers = append(closers, nc.Close)
			log.Printf("[Events] publishing to NATS %s", cfg.NATSURL)
		}
	}

	if cfg.MQTTHost != "" {
		mc, err := events.NewMQTTClient(events.MQTTConfig{
			Host:     cfg.MQTTHost,
			Port:     cfg.MQTTPort,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			ClientID: cfg.MQTTClientID,
		})
		if err != nil {
			log.Printf("[Events] MQTT disabled: %v", err)
		} else {
			sinks = append(sinks, events.NewMQTTSink(mc, cfg.MQTTTopicBase))
			closers = append(closers, mc.Close)
			log.Printf("[Events] publishing to MQTT %s:%d", cfg.MQTTHost, cfg.MQTTPort)
		}
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Printf("[Events] redis disabled: %v", err)
			rdb.Close()
		} else {
			sinks = append(sinks, events.NewRedisSink(rdb, cfg.RedisTTL()))
			closers = append(closers, func() { rdb.Close() })
			log.Printf("[Events] latest state in redis %s", cfg.RedisAddr)
		}
	}

	return events.NewFanout(sinks...), func() {
		for _, c := range closers {
			c()
		}
	}
}
