package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kenya-earn/database"
	"kenya-earn/handlers"
	"kenya-earn/logging"
	"kenya-earn/middleware"
	"kenya-earn/services"
	"kenya-earn/utils"
	"kenya-earn/workers"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background workers",
	RunE:  runServe,
}

func rules() (services.Rules, error) {
	bonus, err := decimal.NewFromString(cfg.Paystack.ReferralBonus)
	if err != nil {
		return services.Rules{}, err
	}
	return services.Rules{
		ActivationAmount: decimal.NewFromInt(int64(cfg.Paystack.ActivationAmount)),
		Currency:         cfg.Paystack.Currency,
		ReferralBonus:    bonus,
	}, nil
}

// newPaymentService wires the gateway client and, when REDIS_URL is set, the replay guard.
func newPaymentService(ctx context.Context, db *gorm.DB) (*services.PaymentService, error) {
	r, err := rules()
	if err != nil {
		return nil, err
	}

	var guard services.ReplayGuard = services.NopReplayGuard{}
	if cfg.RedisURL != "" {
		rg, err := services.NewRedisReplayGuard(cfg.RedisURL, 72*time.Hour)
		if err != nil {
			return nil, err
		}
		if err := rg.Ping(ctx); err != nil {
			logging.Logger.Warn("⚠️  Redis unreachable, webhook replay guard disabled", zap.Error(err))
		} else {
			guard = rg
		}
	}

	gateway := services.NewPaystackClient(
		cfg.Paystack.BaseURL,
		cfg.Paystack.SecretKey,
		cfg.Paystack.CallbackURL,
		cfg.Paystack.Timeout,
		cfg.Paystack.MaxRetries,
	)
	return services.NewPaymentService(db, gateway, cfg.Paystack.SecretKey, r, guard), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	r, err := rules()
	if err != nil {
		return err
	}

	var store services.ObjectStore
	r2, err := utils.NewR2Store(ctx, cfg.R2)
	if err != nil {
		return err
	}
	if r2 != nil {
		store = r2
	} else {
		logging.Logger.Warn("⚠️  CLOUDFLARE_ACCOUNT_ID not set, profile picture uploads disabled")
	}

	payments, err := newPaymentService(ctx, db)
	if err != nil {
		return err
	}

	var firebaseOpts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		firebaseOpts = append(firebaseOpts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	verifier, err := services.SharedFirebaseVerifier(ctx, cfg.Firebase.ProjectID, firebaseOpts...)
	if err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	limiter.StartCleanup(ctx, 10*time.Minute)

	app := handlers.NewApp(handlers.Dependencies{
		DB:                  db,
		Verifier:            verifier,
		Profiles:            services.NewProfileService(db, r, store),
		Wallets:             services.NewWalletService(db),
		Tasks:               services.NewTaskService(db),
		Payments:            payments,
		Dashboard:           services.NewDashboardService(db, nairobi()),
		AdminToken:          cfg.AdminToken,
		AllowedOrigins:      cfg.Origins(),
		AckUnknownReference: cfg.Paystack.AckUnknownReference,
		RateLimiter:         limiter,
		Sweep: handlers.SweepConfig{
			MinAge: cfg.Sweep.MinAge,
			TTL:    cfg.Sweep.PaymentTTL,
		},
	})

	sweeper := workers.NewPaymentSweepWorker(payments, cfg.Sweep.Interval, cfg.Sweep.MinAge, cfg.Sweep.PaymentTTL)
	go sweeper.Start(ctx)

	sched, err := services.StartHousekeeping(db, time.Minute)
	if err != nil {
		return err
	}
	defer func() { _ = sched.Shutdown() }()

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logging.Logger.Error("Server error", zap.Error(err))
			stop()
		}
	}()

	logging.Logger.Info("✅ Server running", zap.String("port", cfg.Port))
	logging.Logger.Info("✅ Payment sweep worker running", zap.Duration("interval", cfg.Sweep.Interval))
	logging.Logger.Info("✅ CORS configured", zap.String("origins", cfg.Origins()))

	<-ctx.Done()
	logging.Logger.Info("Shutting down server...")
	return app.ShutdownWithTimeout(10 * time.Second)
}

// nairobi is the greeting clock; falls back to UTC without tzdata.
func nairobi() *time.Location {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		return time.UTC
	}
	return loc
}
