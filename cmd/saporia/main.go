package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/saporia/saporia/internal/api"
	"github.com/saporia/saporia/internal/config"
	"github.com/saporia/saporia/internal/department"
	"github.com/saporia/saporia/internal/entitlement"
	"github.com/saporia/saporia/internal/globalconfig"
	"github.com/saporia/saporia/internal/logging"
	"github.com/saporia/saporia/internal/profile"
	"github.com/saporia/saporia/internal/profile/sqlitestore"
	"github.com/saporia/saporia/internal/session"
	"github.com/saporia/saporia/internal/websocket"
	"github.com/saporia/saporia/internal/welcome"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "saporia",
	Short:   "Saporia - multi-tenant restaurant operations backend",
	Long:    `Saporia is the entitlement and access-state backend for the Saporia restaurant operations product`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Saporia %s\n", Version)
		fmt.Printf("Built:  %s\n", BuildTime)
		fmt.Printf("Commit: %s\n", GitCommit)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create demo tenant profiles in the local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer() {
	settings, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Format:    settings.LogFormat,
		Level:     settings.LogLevel,
		Component: "saporia",
	})

	log.Info().Str("version", Version).Msg("Starting Saporia")

	store, err := sqlitestore.New(settings.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open profile store")
	}
	defer store.Close()

	evaluator := entitlement.NewEvaluator(settings.PrivilegedEmail)
	lockManager := department.NewManager(store)
	gate := welcome.NewGate(store)
	globalCfg := globalconfig.New(store, settings.SuperAdminEmail, settings.GlobalConfigTTL)

	hub := websocket.NewHub(func(tenantID string) interface{} {
		ctx, cancel := context.WithTimeout(context.Background(), settings.FetchTimeout)
		defer cancel()
		p, err := store.GetProfile(ctx, tenantID)
		if err != nil {
			p = nil
		}
		email := ""
		if p != nil {
			email = p.Email
		}
		return evaluator.Evaluate(p, time.Now(), email)
	})

	server := api.NewServer(store, evaluator, lockManager, gate, globalCfg, hub, settings.SuperAdminEmail)

	httpServer := &http.Server{
		Addr:              settings.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hubStop := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	// Each connected tenant gets a session monitor for as long as at least
	// one of its sessions is on the hub: the monitor performs the
	// watchdog-bounded initial fetch, re-evaluates on every committed
	// profile write, and ticks so wall-clock expiry is observed with no
	// event. Fresh decisions are pushed to the tenant's sessions.
	hub.OnTenantSessions(func(tenantID string) func() {
		monCtx, cancel := context.WithCancel(gctx)
		monitor := session.NewMonitor(store, evaluator,
			session.StaticProvider{Identity: session.Identity{ID: tenantID}},
			session.Options{
				FetchTimeout:   settings.FetchTimeout,
				ReevalInterval: settings.ReevalInterval,
				Publish: func(id string, decision entitlement.Decision) {
					hub.BroadcastDecision(id, decision)
				},
			})
		go func() {
			_ = monitor.Run(monCtx)
		}()
		return cancel
	})

	g.Go(func() error {
		hub.Run(hubStop)
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", settings.ListenAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown did not complete cleanly")
		}
		close(hubStop)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
	log.Info().Msg("Shutdown complete")
}

func runSeed() error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logging.Init(logging.Config{Format: settings.LogFormat, Level: settings.LogLevel, Component: "seed"})

	store, err := sqlitestore.New(settings.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	endDate := profile.NewDateOnly(time.Now().AddDate(0, 1, 0))

	seeds := []struct {
		email    string
		settings profile.TenantSettings
	}{
		{
			email: settings.SuperAdminEmail,
			settings: profile.TenantSettings{
				RestaurantProfile: profile.RestaurantProfile{PlanType: "Pro"},
				GlobalConfig: &profile.GlobalConfig{
					ContactEmail: settings.SuperAdminEmail,
					DefaultCost:  29.90,
					Promo: profile.Promo{
						Name:          "Launch offer",
						Cost:          19.90,
						Duration:      "3 months",
						DeadlineHours: 48,
						Active:        true,
						LastUpdated:   time.Now(),
					},
				},
			},
		},
		{
			email: "trattoria@example.com",
			settings: profile.TenantSettings{
				RestaurantProfile: profile.RestaurantProfile{
					PlanType:            "Basic",
					SubscriptionEndDate: &endDate,
				},
			},
		},
		{
			email: "osteria@example.com",
			settings: profile.TenantSettings{
				RestaurantProfile: profile.RestaurantProfile{PlanType: "Demo"},
			},
		},
	}

	for _, seed := range seeds {
		p, err := store.CreateProfile(ctx, seed.email, seed.settings)
		if err != nil {
			log.Warn().Err(err).Str("email", seed.email).Msg("Seed profile not created")
			continue
		}
		log.Info().Str("id", p.ID).Str("email", p.Email).Msg("Seeded tenant profile")
	}

	return nil
}
