package cmd

import (
	"net/http"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	chiware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	stripeclient "github.com/stripe/stripe-go/v72/client"

	"github.com/everwish/everwish/libs/clients/giftbit"
	appctx "github.com/everwish/everwish/libs/context"
	"github.com/everwish/everwish/libs/datastore"
	"github.com/everwish/everwish/libs/handlers"
	"github.com/everwish/everwish/libs/middleware"
	"github.com/everwish/everwish/services/share"
	"github.com/everwish/everwish/services/share/storage/repository"
	"github.com/everwish/everwish/services/share/xstripe"
)

// ServeCmd starts the share and gift-card fulfillment REST service
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the share and gift-card fulfillment REST service",
	Run:   RestRun,
}

func init() {
	ServeCmd.Flags().String("address", ":3333", "the server address to listen on")
	Must(viper.BindPFlag("address", ServeCmd.Flags().Lookup("address")))
	Must(viper.BindEnv("address", "ADDR"))

	ServeCmd.Flags().String("database-url", "", "the postgres connection url")
	Must(viper.BindPFlag("database-url", ServeCmd.Flags().Lookup("database-url")))
	Must(viper.BindEnv("database-url", "DATABASE_URL"))

	ServeCmd.Flags().String("stripe-secret", "", "the stripe api secret key")
	Must(viper.BindPFlag("stripe-secret", ServeCmd.Flags().Lookup("stripe-secret")))
	Must(viper.BindEnv("stripe-secret", "STRIPE_SECRET"))

	ServeCmd.Flags().String("stripe-webhook-secret", "", "the stripe webhook signing secret")
	Must(viper.BindPFlag("stripe-webhook-secret", ServeCmd.Flags().Lookup("stripe-webhook-secret")))
	Must(viper.BindEnv("stripe-webhook-secret", "STRIPE_WEBHOOK_SECRET"))

	ServeCmd.Flags().String("giftbit-server", "", "the gift card issuance api server")
	Must(viper.BindPFlag("giftbit-server", ServeCmd.Flags().Lookup("giftbit-server")))
	Must(viper.BindEnv("giftbit-server", "GIFTBIT_SERVER"))

	ServeCmd.Flags().String("giftbit-token", "", "the gift card issuance api token")
	Must(viper.BindPFlag("giftbit-token", ServeCmd.Flags().Lookup("giftbit-token")))
	Must(viper.BindEnv("giftbit-token", "GIFTBIT_TOKEN"))

	ServeCmd.Flags().Int64("gift-card-addon-fee", 500,
		"the service fee in minor units added to a gift card at checkout")
	Must(viper.BindPFlag("gift-card-addon-fee", ServeCmd.Flags().Lookup("gift-card-addon-fee")))
	Must(viper.BindEnv("gift-card-addon-fee", "GIFT_CARD_ADDON_FEE"))

	ServeCmd.Flags().String("checkout-success-url", "", "the checkout success redirect url")
	Must(viper.BindPFlag("checkout-success-url", ServeCmd.Flags().Lookup("checkout-success-url")))
	Must(viper.BindEnv("checkout-success-url", "CHECKOUT_SUCCESS_URL"))

	ServeCmd.Flags().String("checkout-cancel-url", "", "the checkout cancel redirect url")
	Must(viper.BindPFlag("checkout-cancel-url", ServeCmd.Flags().Lookup("checkout-cancel-url")))
	Must(viper.BindEnv("checkout-cancel-url", "CHECKOUT_CANCEL_URL"))

	RootCmd.AddCommand(ServeCmd)
}

// RestRun is the main entrypoint of the serve subcommand
func RestRun(command *cobra.Command, args []string) {
	ctx := command.Context()

	logger, err := appctx.GetLogger(ctx)
	if err != nil {
		panic(err)
	}

	buildTime, _ := ctx.Value(appctx.BuildTimeCTXKey).(string)
	commit, _ := ctx.Value(appctx.CommitCTXKey).(string)
	version, _ := ctx.Value(appctx.VersionCTXKey).(string)

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: viper.GetString("environment"),
			Release:     version,
		}); err != nil {
			logger.Error().Err(err).Msg("sentry initialization failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := datastore.NewPostgres(viper.GetString("database-url"), true)
	if err != nil {
		sentry.CaptureException(err)
		logger.Panic().Err(err).Msg("must be able to init postgres connection to start")
	}

	sc := &stripeclient.API{}
	sc.Init(viper.GetString("stripe-secret"), nil)

	gb, err := giftbit.NewClient(viper.GetString("giftbit-server"), viper.GetString("giftbit-token"))
	if err != nil {
		logger.Panic().Err(err).Msg("gift card issuance client initialization failed")
	}

	cfg := share.Config{
		StripeWebhookSecret: viper.GetString("stripe-webhook-secret"),
		GiftCardAddonFee:    viper.GetInt64("gift-card-addon-fee"),
		CheckoutSuccessURL:  viper.GetString("checkout-success-url"),
		CheckoutCancelURL:   viper.GetString("checkout-cancel-url"),
	}

	svc := share.NewService(cfg, db.RawDB(), repository.NewOrder(), repository.NewShare(), xstripe.NewClient(sc), gb)

	r := chi.NewRouter()

	r.Use(chiware.RequestID)
	r.Use(middleware.RequestIDTransfer)
	r.Use(chiware.RealIP)
	r.Use(chiware.Heartbeat("/"))
	r.Use(hlog.NewHandler(*logger))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(middleware.RequestLogger(logger))

	// The redemption path holds the request open while it polls for a link.
	r.Use(chiware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Mount("/v1/shares", share.Router(svc))
	r.Mount("/v1/webhooks", share.WebhookRouter(svc))
	r.Mount("/v1/giftcards", share.GiftCardsRouter(svc))

	r.Get("/health-check", handlers.HealthCheckHandler(version, buildTime, commit, nil))

	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("buildTime", buildTime).
		Msg("server starting up")

	go func() {
		if err := http.ListenAndServe(":9090", middleware.Metrics()); err != nil {
			sentry.CaptureException(err)
			logger.Panic().Err(err).Msg("metrics HTTP server start failed!")
		}
	}()

	srv := http.Server{
		Addr:         viper.GetString("address"),
		Handler:      chi.ServerBaseContext(ctx, r),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 45 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil {
		sentry.CaptureException(err)
		logger.Panic().Err(err).Msg("HTTP server start failed!")
	}
}
