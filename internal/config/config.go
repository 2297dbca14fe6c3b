package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Sub-configurations for the gateway, the
// fulfillment policy, rate limiting and caching have their own loaders.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	DB        DBConfig
	JWTSecret string // secret used to verify access tokens
	QRSecret  string // key for the QR payload MAC
	AMQPURL   string // RabbitMQ URL; empty disables event publishing
	Gateway   GatewayConfig
	Policy    PolicyConfig
}

// DBConfig holds the MySQL connection parameters.
type DBConfig struct {
	User string
	Pass string // empty allowed
	Host string
	Port string
	Name string
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:  must("APP_ENV"),
		Port: must("APP_PORT"),
		DB: DBConfig{
			User: must("DB_USER"),
			Pass: os.Getenv("DB_PASS"),
			Host: must("DB_HOST"),
			Port: must("DB_PORT"),
			Name: must("DB_NAME"),
		},
		JWTSecret: must("JWT_SECRET"),
		QRSecret:  must("QR_SECRET"),
		AMQPURL:   amqpURL(),
		Gateway:   LoadGatewayConfig(),
		Policy:    LoadPolicyConfig(),
	}
}

// GatewayConfig selects and parameterizes the payment gateway adapter.
//
// Mode is "sandbox" (in-process gateway, dev and tests) or "zarinpal".
// Attempts and Backoff bound the internal retry of transient failures.
type GatewayConfig struct {
	Mode        string
	MerchantID  string
	BaseURL     string
	StartPayURL string
	CallbackURL string
	Timeout     time.Duration
	Attempts    int
	Backoff     time.Duration
}

// LoadGatewayConfig reads GATEWAY_* variables.  The merchant id is only
// required outside sandbox mode.
func LoadGatewayConfig() GatewayConfig {
	gc := GatewayConfig{
		Mode:        envStr("GATEWAY_MODE", "sandbox"),
		BaseURL:     envStr("GATEWAY_BASE_URL", "https://api.zarinpal.com"),
		StartPayURL: envStr("GATEWAY_STARTPAY_URL", "https://www.zarinpal.com/pg/StartPay/"),
		CallbackURL: envStr("GATEWAY_CALLBACK_URL", "http://localhost:8080/v1/payments/verify"),
		Timeout:     envDur("GATEWAY_TIMEOUT", 10*time.Second),
		Attempts:    envInt("GATEWAY_RETRY_ATTEMPTS", 3),
		Backoff:     envDur("GATEWAY_RETRY_BACKOFF", 200*time.Millisecond),
	}
	if gc.Mode != "sandbox" {
		gc.MerchantID = must("GATEWAY_MERCHANT_ID")
	}
	if gc.Attempts < 1 {
		gc.Attempts = 1
	}
	return gc
}

// PolicyConfig holds the time-based fulfillment rules.  None of them are
// hard-coded in the services.
type PolicyConfig struct {
	PaymentTimeout time.Duration // unpaid reservations older than this are reconciled then cancelled
	NoShowEnabled  bool
	NoShowCutoff   time.Duration // time after ready_at before a no-show is recorded
	NoShowPenalty  int           // trust points debited per no-show
	SweepInterval  time.Duration
	SweepBatch     int
}

// LoadPolicyConfig reads the policy variables with defaults.
func LoadPolicyConfig() PolicyConfig {
	pc := PolicyConfig{
		PaymentTimeout: envDur("PAYMENT_TIMEOUT", 15*time.Minute),
		NoShowEnabled:  envBool("NOSHOW_ENABLED", true),
		NoShowCutoff:   envDur("NOSHOW_CUTOFF", 2*time.Hour),
		NoShowPenalty:  envInt("NOSHOW_PENALTY", 1),
		SweepInterval:  envDur("SWEEP_INTERVAL", time.Minute),
		SweepBatch:     envInt("SWEEP_BATCH", 100),
	}
	if pc.NoShowPenalty < 1 {
		pc.NoShowPenalty = 1
	}
	if pc.SweepBatch < 1 {
		pc.SweepBatch = 100
	}
	return pc
}

func amqpURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
