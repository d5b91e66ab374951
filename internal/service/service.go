package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"energy-flow-monitor/internal/accumulator"
	"energy-flow-monitor/internal/alerting"
	"energy-flow-monitor/internal/config"
	"energy-flow-monitor/internal/delta"
	"energy-flow-monitor/internal/derive"
	"energy-flow-monitor/internal/history"
	"energy-flow-monitor/internal/period"
	"energy-flow-monitor/internal/reading"
	"energy-flow-monitor/internal/rules"
	"energy-flow-monitor/internal/scheduler"
	"energy-flow-monitor/internal/storage"
)

// Service orchestrates the tick pipeline: deltas, derived flows, period
// accounting, daily snapshots, and notification dispatch.
type Service struct {
	scheduler *scheduler.Scheduler
	engine    *delta.Engine
	acc       *accumulator.Accumulator
	hist      *history.Store
	bus       *alerting.Bus
	adapter   reading.Adapter
	logger    zerolog.Logger

	loc          *time.Location
	language     string
	notifyOn     bool
	presenceID   string
	inputSensors map[string][]string
	ruleSet      []rules.Rule
	locker       storage.AdvisoryLocker
	lockKey      int64

	lastActive map[string]bool
}

// New constructs the monitoring service.
func New(cfg *config.Config, sched *scheduler.Scheduler, engine *delta.Engine, acc *accumulator.Accumulator, hist *history.Store, bus *alerting.Bus, adapter reading.Adapter, locker storage.AdvisoryLocker, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		scheduler:    sched,
		engine:       engine,
		acc:          acc,
		hist:         hist,
		bus:          bus,
		adapter:      adapter,
		logger:       logger.With().Str("component", "service").Logger(),
		loc:          loc,
		language:     cfg.Notifications.Language,
		notifyOn:     cfg.Notifications.Enabled,
		presenceID:   cfg.Sensors.Presence,
		inputSensors: cfg.InputSensors(),
		ruleSet:      rules.All(),
		locker:       locker,
		lockKey:      cfg.Scheduler.AdvisoryLockKey,
		lastActive:   make(map[string]bool),
	}
}

// Run begins the tick loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick executes one full update cycle. It never lets a single
// tick's failure stop the loop; only the advisory lock path returns an
// error, which the scheduler logs.
func (s *Service) ProcessTick(ctx context.Context, now time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("at", now).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	s.executeTick(ctx, now)
	return nil
}

func (s *Service) executeTick(ctx context.Context, now time.Time) {
	tick := s.engine.Compute(ctx)
	flows := derive.Compute(tick.Deltas, tick.Totals.CO2IntensityGPerKWh)

	if !tick.Deltas.Valid {
		s.logger.Info().Uint64("seq", tick.Seq).Str("reason", tick.Deltas.Reason).Msg("interval invalid, zero contribution")
	}

	s.acc.Apply(accumulator.TickState{
		Seq:   tick.Seq,
		Valid: tick.Deltas.Valid,
		Flows: flows,
	}, now)

	s.upsertTodaySnapshot(ctx, now)

	if s.notifyOn {
		s.evaluateNotifications(ctx, now)
	}

	s.logger.Info().
		Uint64("seq", tick.Seq).
		Bool("valid", tick.Deltas.Valid).
		Str("net_use_day", s.acc.Value(derive.KindNetEnergyUse, period.KeyDay, now).String()).
		Msg("tick processed")
}

// upsertTodaySnapshot refreshes today's entry in the historical metrics
// store from the day-period accumulators. Replacing by date keeps the
// write idempotent; the final write of the day becomes the daily record.
func (s *Service) upsertTodaySnapshot(ctx context.Context, now time.Time) {
	snap := history.Snapshot{
		Date: now.In(s.loc).Format("2006-01-02"),
		Values: map[string]float64{
			history.MetricNetUse:          s.acc.Value(derive.KindNetEnergyUse, period.KeyDay, now).InexactFloat64(),
			history.MetricProduction:      s.acc.Value(derive.KindProduced, period.KeyDay, now).InexactFloat64(),
			history.MetricExport:          s.acc.Value(derive.KindExported, period.KeyDay, now).InexactFloat64(),
			history.MetricNightUse:        s.acc.Value(derive.KindNightUse, period.KeyDay, now).InexactFloat64(),
			history.MetricEmissions:       s.acc.Value(derive.KindEmissionsImported, period.KeyDay, now).InexactFloat64(),
			history.MetricSelfSufficiency: s.acc.SelfSufficiency(period.KeyDay, now).InexactFloat64(),
		},
	}
	if err := s.hist.Add(ctx, snap, now); err != nil {
		s.logger.Error().Err(err).Msg("upsert daily snapshot failed")
	}
}

func (s *Service) evaluateNotifications(ctx context.Context, now time.Time) {
	presence := s.presenceMode(ctx)
	metrics := s.hist.NotificationData(ctx, s.adapter, s.inputSensors, now, s.weeklyTrigger(now))
	active := rules.Evaluate(s.ruleSet, metrics, presence, s.language, s.logger)

	for key, message := range active {
		if s.lastActive[key] {
			continue
		}
		rule, ok := rules.ByKey(key)
		if !ok {
			continue
		}
		if s.bus != nil {
			s.bus.Dispatch(ctx, rule, message, now)
		}
	}

	next := make(map[string]bool, len(active))
	for key := range active {
		next[key] = true
	}
	s.lastActive = next
}

func (s *Service) presenceMode(ctx context.Context) string {
	if s.presenceID == "" {
		return ""
	}
	r, ok := s.adapter.Get(ctx, s.presenceID)
	if !ok || r.Value == nil {
		return ""
	}
	return *r.Value
}

// weeklyTrigger gates the weekly coaching tip to Sunday evenings.
func (s *Service) weeklyTrigger(now time.Time) bool {
	local := now.In(s.loc)
	return local.Weekday() == time.Sunday && local.Hour() >= 17 && local.Hour() < 19
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
