// Command zkctl is a diagnostic tool over the coordination library: it
// joins a party, contends a lock, or inspects a shared cache, then exits.
// It is not a service main loop — it owns no HTTP surface and holds no
// long-lived state beyond a single operation's lifetime.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/scionproto/zkcoord/internal/coordination"
	"github.com/scionproto/zkcoord/internal/coordination/zkadapter"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadConfig() (coordination.Identity, coordination.Config) {
	id := coordination.Identity{
		ISDAS:       getenv("ZK_ISD_AS", "1-ff00:0:110"),
		ServiceType: getenv("ZK_SERVICE_TYPE", "diagnostic"),
		InstanceID:  getenv("ZK_INSTANCE_ID", fmt.Sprintf("zkctl-%d", os.Getpid())),
	}
	hosts := strings.Split(getenv("ZK_HOSTS", "127.0.0.1:2181"), ",")
	timeout, err := time.ParseDuration(getenv("ZK_SESSION_TIMEOUT", "1s"))
	if err != nil {
		timeout = time.Second
	}
	return id, coordination.Config{SessionTimeout: timeout, Hosts: hosts}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: zkctl <party|lock|cache> [name]")
		os.Exit(2)
	}

	logger := zap.NewExample().Sugar()
	defer logger.Sync()

	id, cfg := loadConfig()

	adapter, err := zkadapter.Dial(cfg.Hosts, cfg.EffectiveSessionTimeout(), logger)
	if err != nil {
		logger.Fatalw("failed to dial coordination store", "error", err)
	}

	client := coordination.NewClient(id, cfg, adapter, logger)
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := client.WaitConnected(waitCtx); err != nil {
		waitCancel()
		logger.Fatalw("timed out waiting for connection", "error", err)
	}
	waitCancel()

	name := ""
	if len(os.Args) > 2 {
		name = os.Args[2]
	}

	switch os.Args[1] {
	case "party":
		runParty(ctx, client, name, logger)
	case "lock":
		runLock(ctx, client, name, logger)
	case "cache":
		runCache(ctx, client, name, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runParty(ctx context.Context, c *coordination.Client, name string, logger *zap.SugaredLogger) {
	p := c.NewParty(name, c.Identity().String(), true)
	members, err := p.List(ctx)
	if err != nil {
		logger.Fatalw("failed to list party members", "error", err)
	}
	fmt.Println(strings.Join(members, "\n"))
}

func runLock(ctx context.Context, c *coordination.Client, name string, logger *zap.SugaredLogger) {
	lock := c.NewLock(name)
	ok, err := lock.TryAcquire(ctx, 5*time.Second, 5*time.Second)
	if err != nil {
		logger.Fatalw("lock acquisition failed", "error", err)
	}
	if ok {
		fmt.Println("acquired")
		return
	}
	holder, err := lock.Holder(ctx)
	if err != nil {
		logger.Fatalw("failed to read lock holder", "error", err)
	}
	fmt.Printf("not acquired, held by %s\n", holder)
}

func runCache(ctx context.Context, c *coordination.Client, name string, logger *zap.SugaredLogger) {
	var seen [][]byte
	cache := c.NewSharedCache(name, func(batch [][]byte) error {
		seen = append(seen, batch...)
		return nil
	})
	if err := cache.Process(ctx); err != nil {
		logger.Fatalw("cache process failed", "error", err)
	}
	for _, payload := range seen {
		fmt.Printf("%s\n", payload)
	}
}
