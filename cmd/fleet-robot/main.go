package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/rpaflow/fleetcore/pkg/agent"
	"github.com/rpaflow/fleetcore/pkg/logging"
	"github.com/rpaflow/fleetcore/pkg/shutdown"
	"github.com/rpaflow/fleetcore/pkg/telemetry"
)

func main() {
	var (
		serverURL   = flag.String("server", "http://localhost:8080", "Orchestrator base URL")
		robotID     = flag.String("id", "", "Robot ID (default: hostname)")
		environment = flag.String("environment", "production", "Robot environment")
		zone        = flag.String("zone", "", "Network zone")
		tags        = flag.String("tags", "", "Comma-separated robot tags")
		maxJobs     = flag.Int("max-jobs", 1, "Maximum concurrent jobs")
		interval    = flag.Duration("heartbeat-interval", 30*time.Second, "Heartbeat interval")
		apiKey      = flag.String("api-key", "", "API key (or FLEETCORE_API_KEY)")
		logLevel    = flag.String("log-level", "INFO", "Log level: DEBUG, INFO, WARN, ERROR")
	)
	flag.Parse()

	if *apiKey == "" {
		*apiKey = os.Getenv("FLEETCORE_API_KEY")
	}

	logger, err := logging.NewFileLogger("fleet-robot", logging.ParseLevel(*logLevel), false)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	var tagList []string
	if *tags != "" {
		tagList = strings.Split(*tags, ",")
	}

	collector := telemetry.NewCollector(*robotID, *environment, *zone, tagList, *maxJobs)
	client := agent.NewClient(*serverURL, *apiKey)

	info, err := collector.Snapshot(0)
	if err != nil {
		log.Fatalf("Failed to sample host telemetry: %v", err)
	}
	if err := client.Register(info, 0); err != nil {
		log.Fatalf("Failed to register with %s: %v", *serverURL, err)
	}
	log.Printf("[Robot] Registered as %s (env=%s, zone=%s, max_jobs=%d)",
		client.RobotID(), *environment, *zone, *maxJobs)
	logger.Info("Robot registered", map[string]interface{}{
		"robot_id": client.RobotID(),
		"server":   *serverURL,
	})

	mgr := shutdown.New(30 * time.Second)
	mgr.Register(func(ctx context.Context) error {
		return client.Deregister()
	})

	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				snapshot, err := collector.Snapshot(0)
				if err != nil {
					log.Printf("[Robot] Telemetry sample failed: %v", err)
					continue
				}
				if err := client.SendHeartbeat(snapshot); err != nil {
					log.Printf("[Robot] Heartbeat failed: %v", err)
					logger.Warn("Heartbeat failed", map[string]interface{}{"error": err.Error()})
				}
			}
		}
	}()
	mgr.Register(func(ctx context.Context) error {
		close(stopCh)
		return nil
	})

	log.Printf("[Robot] Heartbeating every %v, Ctrl+C to stop", *interval)
	if err := mgr.WaitWithContext(context.Background()); err != nil {
		log.Printf("[Robot] Shutdown error: %v", err)
	}
}
