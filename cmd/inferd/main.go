package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/inferd/inferd/internal/config"
	"github.com/inferd/inferd/internal/lifecycle"
	"github.com/inferd/inferd/internal/metrics"
	"github.com/inferd/inferd/internal/procman"
	"github.com/inferd/inferd/internal/setup"
	"github.com/inferd/inferd/internal/sysmon"
	"github.com/inferd/inferd/pkg/api"
	"github.com/inferd/inferd/pkg/auth"
	"github.com/inferd/inferd/pkg/logging"
	"github.com/inferd/inferd/pkg/models"
	"github.com/inferd/inferd/pkg/ratelimit"
	"github.com/inferd/inferd/pkg/shutdown"
	"github.com/inferd/inferd/pkg/store"
	inferdtls "github.com/inferd/inferd/pkg/tls"
	"github.com/inferd/inferd/pkg/tracing"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewFileLogger("inferd", logging.ParseLevel(cfg.Log.Level), cfg.Log.JSON)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Info("Starting inferd", map[string]interface{}{"version": version})

	// Store
	st, err := store.New(store.Config{
		Type: cfg.Database.Type,
		Path: cfg.Database.Path,
		DSN:  cfg.Database.DSN,
	})
	if err != nil {
		logger.Fatal("Failed to open store", map[string]interface{}{"error": err.Error()})
	}

	// Usecase catalog
	catalog, err := loadCatalog(cfg.Paths.Usecases)
	if err != nil {
		logger.Fatal("Failed to load usecase catalog", map[string]interface{}{"error": err.Error()})
	}

	// Tracing
	tracer, err := tracing.InitTracer(tracing.Config{
		ServiceName:    "inferd",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracing", map[string]interface{}{"error": err.Error()})
	}

	// Process management and lifecycle
	procs := procman.NewManager(cfg.Paths.Workers, cfg.Paths.Logs, cfg.Workers.StopGrace)
	ports := procman.NewPortAllocator(cfg.Workers.PortBase, cfg.Workers.PortCount)
	paths := lifecycle.Paths{
		WorkersDir:      cfg.Paths.Workers,
		AssetsDir:       cfg.Paths.Assets,
		CustomModelsDir: cfg.Paths.CustomModels,
		UploadsDir:      cfg.Paths.Uploads,
	}
	hook := lifecycle.NewHook(procs, ports, catalog, paths)

	// Monitoring
	exporter := metrics.NewExporter()
	collector := sysmon.NewCollector(st, cfg.Monitor.Interval, cfg.Monitor.Retention)
	collector.SetPublisher(exporter)
	poller := metrics.NewPoller(st, exporter, cfg.Workers.PollInterval)

	// A worker that dies without reporting is marked failed so the dashboard
	// shows the crash instead of a stuck prepare/active state.
	procs.SetExitHandler(func(name string, exitCode int, requested bool) {
		if requested {
			return
		}
		var id int
		if _, err := fmt.Sscanf(name, "workload-%d", &id); err != nil {
			return
		}
		w, err := st.GetWorkload(id)
		if err != nil || !models.IsRunningState(w.Status) {
			return
		}
		exporter.IncWorkerRestarts(name)
		msg := fmt.Sprintf("worker exited unexpectedly with code %d", exitCode)
		if err := st.UpdateWorkloadStatus(id, models.StatusFailed, msg); err != nil {
			logger.Warn("Failed to record worker exit", map[string]interface{}{"workload": id, "error": err.Error()})
		}
		hook.AfterChange(w, &models.Workload{ID: id, Status: models.StatusFailed})
	})

	ctx, cancel := context.WithCancel(context.Background())
	go collector.Run(ctx)
	go poller.Run(ctx)

	// Worker environments
	provisioner := setup.NewProvisioner(cfg.Paths.Workers, cfg.Paths.Logs, catalog)
	if cfg.Workers.AutoSetup {
		names := make([]string, 0)
		for _, uc := range catalog.All() {
			names = append(names, uc.Name)
		}
		go provisioner.ProvisionAll(ctx, names)
	}

	// Resume: workloads that were running when the daemon last stopped are
	// relaunched.
	resumeWorkloads(st, hook, logger)

	hostname, _ := os.Hostname()
	tokens := auth.NewTokenManager()
	handler := api.NewHandler(st, hook, procs, catalog, collector, poller, exporter, provisioner, tokens, hostname)

	router := mux.NewRouter()
	limiter := ratelimit.NewLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	limiterKey := ratelimit.IPKeyFunc
	if cfg.Server.TrustProxy {
		limiterKey = ratelimit.ForwardedKeyFunc
	}
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(limiter.Middleware(limiterKey))
	router.Use(auth.Middleware(cfg.Auth.APIKey, tokens))
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sd := shutdown.New(cfg.Server.ShutdownTimeout)
	sd.Register(shutdown.CloseResource(logger, "logger"))
	sd.Register(shutdown.CloseResource(st, "store"))
	sd.Register(shutdown.StopWorkers(procs.StopAll))
	sd.Register(func(sctx context.Context) error {
		cancel()
		return tracer.Shutdown(sctx)
	})
	sd.Register(shutdown.StopHTTPServer(srv, "api"))

	go func() {
		logger.Info("API listening", map[string]interface{}{"addr": srv.Addr, "tls": cfg.Server.TLSEnabled})
		var serveErr error
		if cfg.Server.TLSEnabled {
			if err := inferdtls.EnsureCert(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile, "inferd", cfg.Server.Host); err != nil {
				logger.Fatal("Failed to prepare TLS certificate", map[string]interface{}{"error": err.Error()})
			}
			serveErr = srv.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			serveErr = srv.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Fatal("Failed to start server", map[string]interface{}{"error": serveErr.Error()})
		}
	}()

	sd.Wait()
	sd.Shutdown()
}

func loadCatalog(path string) (*models.Catalog, error) {
	if path == "" {
		return models.DefaultCatalog(), nil
	}
	return models.LoadCatalog(path)
}

// resumeWorkloads relaunches workloads left in a running state by a
// previous daemon instance.
func resumeWorkloads(st store.Store, hook *lifecycle.Hook, logger *logging.Logger) {
	for _, w := range st.GetAllWorkloads() {
		if !models.IsRunningState(w.Status) {
			continue
		}
		logger.Info("Resuming workload", map[string]interface{}{"workload": w.ID, "usecase": w.Usecase})
		if err := st.UpdateWorkloadStatus(w.ID, models.StatusPrepare, ""); err != nil {
			logger.Warn("Failed to reset workload", map[string]interface{}{"workload": w.ID, "error": err.Error()})
			continue
		}
		w.Status = models.StatusPrepare
		if err := hook.AfterChange(nil, w); err != nil {
			logger.Warn("Failed to resume workload", map[string]interface{}{"workload": w.ID, "error": err.Error()})
			st.UpdateWorkloadStatus(w.ID, models.StatusFailed, err.Error())
		}
	}
}
