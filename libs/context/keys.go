package context

import "errors"

// CTXKey - a type for context keys
type CTXKey string

const (
	// EnvironmentCTXKey - the key used for the service environment
	EnvironmentCTXKey CTXKey = "environment"
	// VersionCTXKey - the key used for the service version
	VersionCTXKey CTXKey = "version"
	// CommitCTXKey - the key used for the build commit
	CommitCTXKey CTXKey = "commit"
	// BuildTimeCTXKey - the key used for the build time
	BuildTimeCTXKey CTXKey = "build_time"
	// LogLevelCTXKey - the key used for the log level
	LogLevelCTXKey CTXKey = "log_level"
	// LogWriterCTXKey - the key used for overriding the log writer
	LogWriterCTXKey CTXKey = "log_writer"
	// DebugLoggingCTXKey - the key used for debug logging toggles
	DebugLoggingCTXKey CTXKey = "debug_logging"
	// DatastoreCTXKey - the context key for getting the datastore
	DatastoreCTXKey CTXKey = "datastore"
	// RateLimitPerMinuteCTXKey - the context key for getting the rate limit
	RateLimitPerMinuteCTXKey CTXKey = "rate_limit_per_min"

	// DatabaseURLCTXKey - the context key for the database url
	DatabaseURLCTXKey CTXKey = "database_url"
	// DatabaseMigrationsURLCTXKey - the context key for the database migrations url
	DatabaseMigrationsURLCTXKey CTXKey = "database_migrations_url"

	// StripeSecretCTXKey - the context key for the stripe api secret
	StripeSecretCTXKey CTXKey = "stripe_secret"
	// StripeWebhookSecretCTXKey - the context key for the stripe webhook signing secret
	StripeWebhookSecretCTXKey CTXKey = "stripe_webhook_secret"

	// GiftbitServerCTXKey - the context key for the giftbit api server
	GiftbitServerCTXKey CTXKey = "giftbit_server"
	// GiftbitTokenCTXKey - the context key for the giftbit api token
	GiftbitTokenCTXKey CTXKey = "giftbit_token"

	// GiftCardAddonPriceCTXKey - the context key for the gift-card add-on price in minor units
	GiftCardAddonPriceCTXKey CTXKey = "gift_card_addon_price"
)

var (
	// ErrNotInContext - error you get when you ask for something not in the context.
	ErrNotInContext = errors.New("failed to get value from context")
	// ErrValueWrongType - error you get when you ask for something, and it is not the type you expected
	ErrValueWrongType = errors.New("context value of wrong type")
)
