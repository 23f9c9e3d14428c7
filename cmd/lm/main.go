package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/suiftly/sealctl/internal/clock"
	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/etcd"
	"github.com/suiftly/sealctl/internal/fieldcipher"
	"github.com/suiftly/sealctl/internal/localmanager"
	"github.com/suiftly/sealctl/internal/vault"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "sealctl-lm",
		Usage: "Local Manager (C8): edge-agent vault polling and health surface",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "lm-id", EnvVars: []string{"SEALCTL_LM_ID"}, Required: true},
			&cli.StringFlag{Name: "host", Value: "0.0.0.0", EnvVars: []string{"SEALCTL_HOST"}},
			&cli.IntFlag{Name: "port", Value: 8082, EnvVars: []string{"SEALCTL_LM_PORT"}},
			&cli.StringFlag{Name: "vault-dir", Value: "/var/lib/sealctl/vaults", EnvVars: []string{"SEALCTL_VAULT_DIR"}},
			&cli.StringFlag{Name: "vault-key-sma", EnvVars: []string{"SEALCTL_VAULT_KEY_SMA"}},
			&cli.StringFlag{Name: "vault-key-stb", EnvVars: []string{"SEALCTL_VAULT_KEY_STB"}},
			&cli.StringFlag{Name: "etcd-endpoints", EnvVars: []string{"SEALCTL_ETCD_ENDPOINTS"}},
			&cli.StringFlag{Name: "self-host", EnvVars: []string{"SEALCTL_SELF_HOST"}, Usage: "this edge's externally reachable base URL, registered in the fleet"},
			&cli.StringFlag{Name: "fleet-auth-secret", EnvVars: []string{"SEALCTL_FLEET_AUTH_SECRET"}},
		},
		Action: runLM,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runLM(c *cli.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("[LM] shutdown signal received")
		cancel()
	}()

	ciphers, err := buildCiphers(c)
	if err != nil {
		return err
	}
	vaults := vault.NewStore(c.String("vault-dir"), ciphers)

	cfg := localmanager.Config{
		LMID:            c.String("lm-id"),
		VaultTypes:      enum.VaultTypes,
		Store:           vaults,
		Clock:           clock.Real{},
		SelfHost:        c.String("self-host"),
		FleetAuthSecret: c.String("fleet-auth-secret"),
	}

	if raw := c.String("etcd-endpoints"); raw != "" {
		etcdClient, err := etcd.NewClient(etcd.Config{Endpoints: strings.Split(raw, ",")})
		if err != nil {
			// §4.8.3: fleet membership is best-effort, but a configured
			// endpoint that can't be dialed at startup is worth failing loud
			// on rather than silently running unregistered.
			return fmt.Errorf("connect etcd: %w", err)
		}
		cfg.EtcdClient = etcdClient
	}

	m := localmanager.New(cfg)

	mux := http.NewServeMux()
	mux.Handle("/api/health", m.AuthenticatedHealthHandler())

	addr := fmt.Sprintf("%s:%d", c.String("host"), c.Int("port"))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("[LM] lm_id=%s listening addr=%s", cfg.LMID, addr)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[LM] server error: %v", err)
		}
	}()

	go m.Run(ctx)

	<-ctx.Done()
	log.Println("[LM] shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[LM] shutdown error: %v", err)
	}
	return nil
}

func buildCiphers(c *cli.Context) (map[enum.VaultType]*fieldcipher.Cipher, error) {
	ciphers := make(map[enum.VaultType]*fieldcipher.Cipher)
	pairs := map[enum.VaultType]string{
		enum.VaultSealMainnetAPI:     c.String("vault-key-sma"),
		enum.VaultSealTestnetBilling: c.String("vault-key-stb"),
	}
	for vt, keyB64 := range pairs {
		if keyB64 == "" {
			continue
		}
		cipher, err := fieldcipher.NewFromBase64(keyB64)
		if err != nil {
			return nil, fmt.Errorf("field cipher for %s: %w", vt, err)
		}
		ciphers[vt] = cipher
	}
	return ciphers, nil
}
