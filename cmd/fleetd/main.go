package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/rpaflow/fleetcore/pkg/affinity"
	"github.com/rpaflow/fleetcore/pkg/api"
	"github.com/rpaflow/fleetcore/pkg/assignment"
	"github.com/rpaflow/fleetcore/pkg/auth"
	"github.com/rpaflow/fleetcore/pkg/calendar"
	"github.com/rpaflow/fleetcore/pkg/history"
	"github.com/rpaflow/fleetcore/pkg/logging"
	"github.com/rpaflow/fleetcore/pkg/metrics"
	"github.com/rpaflow/fleetcore/pkg/models"
	"github.com/rpaflow/fleetcore/pkg/scheduler"
	"github.com/rpaflow/fleetcore/pkg/shutdown"
	fleettls "github.com/rpaflow/fleetcore/pkg/tls"
	"github.com/rpaflow/fleetcore/pkg/tracing"
)

func main() {
	listenAddr := flag.String("listen", ":8080", "API listen address")
	zone := flag.String("zone", "", "Orchestrator network zone, used for proximity scoring")
	historyBackend := flag.String("history", "memory", "Run history backend: memory, sqlite or postgres")
	historyDSN := flag.String("history-dsn", "", "History DSN (file path for sqlite, connection string for postgres)")
	calendarFile := flag.String("calendars", "", "Business calendar YAML file")
	apiKeyFlag := flag.String("api-key", "", "Operator API key (or FLEETCORE_API_KEY env var; empty disables auth)")
	heartbeatTimeout := flag.Duration("heartbeat-timeout", 2*time.Minute, "Robot heartbeat timeout")
	rateLimitRPS := flag.Float64("rate-limit", 50, "API requests per second per client")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	tracingEndpoint := flag.String("tracing-endpoint", "", "OTLP HTTP endpoint (empty disables tracing)")
	catchUpOnStart := flag.Bool("catch-up", true, "Replay missed runs on startup")
	tlsCert := flag.String("tls-cert", "", "TLS certificate file (empty serves plain HTTP)")
	tlsKey := flag.String("tls-key", "", "TLS key file")
	tlsCA := flag.String("tls-ca", "", "CA file for robot client certificates (enables mTLS)")
	tlsGen := flag.Bool("tls-gen", false, "Generate a self-signed certificate at the cert/key paths and exit")
	flag.Parse()

	if *tlsGen {
		if *tlsCert == "" || *tlsKey == "" {
			log.Fatal("-tls-gen requires -tls-cert and -tls-key")
		}
		if err := fleettls.GenerateSelfSignedCert(*tlsCert, *tlsKey, "fleetd"); err != nil {
			log.Fatalf("Failed to generate certificate: %v", err)
		}
		log.Printf("Wrote self-signed certificate to %s and key to %s", *tlsCert, *tlsKey)
		return
	}

	apiKey := *apiKeyFlag
	if apiKey == "" {
		apiKey = os.Getenv("FLEETCORE_API_KEY")
	}

	logger, err := logging.NewFileLogger("fleetd", logging.ParseLevel(*logLevel), false)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Info("Starting fleetcore orchestrator daemon")

	// Tracing
	tracer, err := tracing.InitTracer(tracing.Config{
		ServiceName:    "fleetd",
		ServiceVersion: "1.0.0",
		Environment:    os.Getenv("FLEETCORE_ENV"),
		OTLPEndpoint:   *tracingEndpoint,
		Enabled:        *tracingEndpoint != "",
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	// Run history
	hist, err := history.NewStore(history.Config{Backend: *historyBackend, DSN: *historyDSN})
	if err != nil {
		log.Fatalf("Failed to open history store: %v", err)
	}
	logger.Info("Run history backend ready", map[string]interface{}{"backend": *historyBackend})

	// Business calendars
	calendars := calendar.NewRegistry()
	if *calendarFile != "" {
		loaded, err := calendar.LoadFile(*calendarFile)
		if err != nil {
			log.Fatalf("Failed to load calendars from %s: %v", *calendarFile, err)
		}
		for _, cal := range loaded {
			calendars.Register(cal)
		}
		logger.Info("Calendars loaded", map[string]interface{}{"count": len(loaded), "file": *calendarFile})
	}

	// Core components
	mgr := affinity.NewManager(affinity.DefaultConfig())
	mgr.Start()

	engine := assignment.NewEngine(assignment.WithAffinityChecker(mgr))
	registry := api.NewRobotRegistry(*heartbeatTimeout)

	m := metrics.New()

	// The trigger callback runs assignment over the live robot registry
	// and reports the decision. Execution itself belongs to the robots.
	trigger := func(ctx context.Context, tc *models.TriggerContext) error {
		req := &models.JobRequirements{
			WorkflowID: tc.Schedule.WorkflowID,
		}
		start := time.Now()
		result, err := engine.Assign(req, registry.Snapshot(), *zone)
		m.AssignmentDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			m.AssignmentsTotal.WithLabelValues("no_capable_robot").Inc()
			return err
		}
		m.AssignmentsTotal.WithLabelValues("assigned").Inc()
		logger.Info("Schedule triggered", map[string]interface{}{
			"schedule": tc.Schedule.Name,
			"workflow": tc.Schedule.WorkflowID,
			"robot":    result.RobotID,
			"score":    result.Score,
			"catch_up": tc.CatchUp,
		})
		return nil
	}

	sched := scheduler.New(trigger,
		scheduler.WithCalendars(calendars),
		scheduler.WithHistory(hist),
	)
	sched.Start()

	if *catchUpOnStart {
		go func() {
			if n := sched.RunCatchUpAll(context.Background()); n > 0 {
				m.CatchUpRuns.Add(float64(n))
				logger.Info("Catch-up complete", map[string]interface{}{"replayed": n})
			}
		}()
	}

	// API server
	tokens := auth.NewTokenManager()
	keys := auth.NewAPIKeyManager()
	if apiKey != "" {
		keys.AddKey(apiKey, "operator")
		logger.Info("API authentication enabled")
	} else {
		logger.Warn("API authentication disabled (no API key configured)")
	}

	handler := api.NewFleetHandler(registry, engine, mgr, sched, tokens, *zone)
	serverConfig := api.DefaultServerConfig()
	serverConfig.ListenAddr = *listenAddr
	serverConfig.RateLimitRPS = *rateLimitRPS
	serverConfig.CertFile = *tlsCert
	serverConfig.KeyFile = *tlsKey
	serverConfig.CAFile = *tlsCA
	server := api.NewServer(serverConfig, handler, keys, m, tracer)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("API server error: %v", err)
		}
	}()

	// Graceful shutdown, LIFO: API first, then scheduler, then the rest.
	sd := shutdown.New(30 * time.Second)
	sd.Register(func(ctx context.Context) error { return tracer.Shutdown(ctx) })
	sd.Register(shutdown.CloseResource(hist, "history store"))
	sd.Register(func(ctx context.Context) error {
		mgr.Stop()
		return nil
	})
	sd.Register(func(ctx context.Context) error {
		sched.Stop(true)
		return nil
	})
	sd.Register(shutdown.StopHTTPServer(server, "api"))

	if err := sd.WaitWithContext(context.Background()); err != nil {
		logger.Error("Shutdown error", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("fleetd stopped")
}
