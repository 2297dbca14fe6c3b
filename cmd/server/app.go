package main

import (
	"database/sql"
	"fmt"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/meal-reservation/internal/config"
	"github.com/iliyamo/meal-reservation/internal/database"
	"github.com/iliyamo/meal-reservation/internal/gateway"
	"github.com/iliyamo/meal-reservation/internal/queue"
	"github.com/iliyamo/meal-reservation/internal/service"
	"github.com/iliyamo/meal-reservation/internal/utils"
)

// app is the wiring shared by serve and sweep.
type app struct {
	cfg    config.Config
	db     *sql.DB
	broker *queue.Broker // nil without AMQP_URL
	svc    *service.Services
	logger *log.Logger
}

func newApp() (*app, error) {
	cfg := config.Load()
	logger := log.New("meal")
	if cfg.Env == "dev" {
		logger.SetLevel(log.DEBUG)
	} else {
		logger.SetLevel(log.INFO)
	}

	db, err := database.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	gw, err := gateway.New(cfg.Gateway, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	qr, err := utils.NewQRSigner(cfg.QRSecret)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{cfg: cfg, db: db, logger: logger}
	var events service.Publisher = queue.Discard{}
	if cfg.AMQPURL != "" {
		a.broker = queue.NewBroker(cfg.AMQPURL, logger)
		events = a.broker
	}
	a.svc = service.New(service.Deps{
		DB:          db,
		Gateway:     gw,
		Events:      events,
		QR:          qr,
		Policy:      cfg.Policy,
		CallbackURL: cfg.Gateway.CallbackURL,
		Logger:      logger,
	})
	return a, nil
}

func (a *app) close() {
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.logger.Warnf("close broker: %v", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warnf("close database: %v", err)
	}
}
