package gateway

import (
	"fmt"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/meal-reservation/internal/config"
)

// New builds the configured gateway wrapped in Resilient.
func New(cfg config.GatewayConfig, logger *log.Logger) (*Resilient, error) {
	var g Gateway
	switch cfg.Mode {
	case "sandbox":
		// the payer "returns" straight to the callback, as after a successful payment
		g = NewSandbox(true, cfg.CallbackURL+"?Status=OK&Authority=")
	case "zarinpal":
		g = NewZarinpal(cfg)
	default:
		return nil, fmt.Errorf("unknown gateway mode %q", cfg.Mode)
	}
	return NewResilient(g, cfg.Attempts, cfg.Backoff, logger), nil
}
