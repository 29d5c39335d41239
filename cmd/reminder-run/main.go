// reminder-run performs a single reminder scan and exits. It exists for
// cron-style deployments and for targeted re-runs of one rule.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/northcart/reminder-engine/internal/config"
	"github.com/northcart/reminder-engine/internal/dispatch"
	"github.com/northcart/reminder-engine/internal/domain"
	"github.com/northcart/reminder-engine/internal/repository/postgres"
	"github.com/northcart/reminder-engine/internal/service/reminder"
)

func main() {
	var (
		kindFlag = flag.String("kind", "", "rule kind to scan (required)")
		ruleFlag = flag.String("rule", "", "restrict the scan to one rule id")
		cfgFlag  = flag.String("config", "config.yaml", "path to config file")
	)
	flag.Parse()

	kind, err := domain.ParseRuleKind(*kindFlag)
	if err != nil {
		log.Fatalf("-kind: %v", err)
	}

	cfg, err := config.LoadFromEnv(*cfgFlag)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	dbURL := cfg.Database.URL
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	rules := postgres.NewRuleRepo(db)
	histories := postgres.NewHistoryRepo(db)
	customers := postgres.NewCustomerRepo(db)
	orders := postgres.NewOrderRepo(db)
	catalog := postgres.NewCatalogRepo(db)
	dispatcher := dispatch.New(
		postgres.NewAccountRepo(db),
		postgres.NewOutboxRepo(db),
		postgres.NewActivityRepo(db),
	)

	eval := reminder.NewConditionEvaluator(catalog, reminder.TokenAttributeParser{})
	prog := reminder.NewLevelProgressor(histories, dispatcher, eval)
	runner := reminder.NewTaskRunner(rules, reminder.NewScanners(customers, orders), prog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.Run(ctx, kind, *ruleFlag); err != nil {
		log.Fatalf("Scan %s failed: %v", kind, err)
	}
	log.Printf("Scan %s completed", kind)
}
