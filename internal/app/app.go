package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"energy-flow-monitor/internal/accumulator"
	"energy-flow-monitor/internal/alerting"
	"energy-flow-monitor/internal/config"
	"energy-flow-monitor/internal/delta"
	"energy-flow-monitor/internal/derive"
	"energy-flow-monitor/internal/history"
	"energy-flow-monitor/internal/reading"
	"energy-flow-monitor/internal/scheduler"
	"energy-flow-monitor/internal/service"
	"energy-flow-monitor/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// openStore builds the configured document store backend. The returned
// locker is nil for backends without advisory locking.
func (a *App) openStore(ctx context.Context) (storage.DocumentStore, storage.AdvisoryLocker, func(), error) {
	switch a.Config.Storage.Backend {
	case "postgres":
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		store := storage.NewPGStore(pool)
		if err := store.Init(ctx); err != nil {
			store.Close()
			return nil, nil, nil, err
		}
		return store, store, store.Close, nil
	case "file":
		return storage.NewFileStore(a.Config.Storage.StateDir), nil, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend %q", a.Config.Storage.Backend)
	}
}

func (a *App) newAdapter() reading.Adapter {
	return reading.NewREST(reading.RESTOptions{
		BaseURL: a.Config.HomeAssistant.BaseURL,
		Token:   a.Config.HomeAssistant.Token,
		Timeout: a.Config.HomeAssistant.RequestTimeout,
	}, a.Logger)
}

func (a *App) newEngine(adapter reading.Adapter) *delta.Engine {
	return delta.NewEngine(adapter, delta.Groups{
		Imported:  a.Config.Sensors.Imported,
		Exported:  a.Config.Sensors.Exported,
		Produced:  a.Config.Sensors.Produced,
		Charge:    a.Config.Sensors.Charge,
		Discharge: a.Config.Sensors.Discharge,
		CO2:       a.Config.Sensors.CO2Intensity,
	}, a.Logger)
}

func (a *App) newBus() (*alerting.Bus, func(), error) {
	nc := a.Config.Notifications
	var notifiers []alerting.Notifier
	closer := func() {}

	if nc.Webhook.Enabled {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(nc.Webhook.URL, nc.Webhook.Token, nc.Webhook.Timeout, a.Logger))
	}
	if nc.MQTT.Enabled {
		mq, err := alerting.NewMQTTNotifier(alerting.MQTTOptions{
			BrokerURL:   nc.MQTT.BrokerURL,
			ClientID:    nc.MQTT.ClientID,
			Username:    nc.MQTT.Username,
			Password:    nc.MQTT.Password,
			TopicPrefix: nc.MQTT.TopicPrefix,
			Timeout:     nc.MQTT.Timeout,
		}, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, mq)
		closer = mq.Close
	}

	routing := alerting.Routing{
		PushGeneral:  nc.PushGeneral,
		PushWarnings: nc.PushWarnings,
		PushAlarms:   nc.PushAlarms,
		MailWarnings: nc.MailWarnings,
		MailAlarms:   nc.MailAlarms,
	}
	return alerting.NewBus(notifiers, routing, a.Logger), closer, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loc, err := a.Config.Location()
	if err != nil {
		return err
	}

	store, locker, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	now := time.Now()

	acc := accumulator.New(store, derive.Specs(), loc, a.Logger)
	if err := acc.Load(ctx); err != nil {
		return fmt.Errorf("load accumulators: %w", err)
	}
	acc.Start(ctx)

	hist := history.NewStore(store, loc, a.Logger)
	if err := hist.Load(ctx, now); err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	bus, closeBus, err := a.newBus()
	if err != nil {
		return err
	}
	defer closeBus()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval(),
		AlignToStart: a.Config.Scheduler.AlignToInterval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	adapter := a.newAdapter()
	engine := a.newEngine(adapter)

	svc := service.New(a.Config, sched, engine, acc, hist, bus, adapter, locker, loc, a.Logger)

	a.Logger.Info().
		Dur("interval", a.Config.Scheduler.Interval()).
		Str("backend", a.Config.Storage.Backend).
		Msg("starting monitoring service")

	err = svc.Run(ctx)

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if ferr := acc.Flush(flushCtx); ferr != nil {
		a.Logger.Error().Err(ferr).Msg("final accumulator flush failed")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting daily history.
type ExportOptions struct {
	Days    int
	PNGPath string
	CSVPath string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
