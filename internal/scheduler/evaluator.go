// Package scheduler switches relays on and off according to their
// recurring schedules, one evaluation per minute.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"CapIot.relaysync/internal/models"
)

// ScheduleSource lists active schedules with their relay loaded.
type ScheduleSource interface {
	ListActiveSchedulesWithRelay(ctx context.Context) ([]models.RelaySchedule, error)
}

// Commander issues desired relay states and snapshot requests.
type Commander interface {
	Issue(ctx context.Context, deviceID string, channel int, state bool) error
	RequestSnapshot(deviceID string)
}

// Action is what an evaluation decided for one schedule.
type Action int

const (
	ActionNone Action = iota
	ActionOn
	ActionOff
)

func (a Action) String() string {
	switch a {
	case ActionOn:
		return "on"
	case ActionOff:
		return "off"
	default:
		return "none"
	}
}

// Result summarises one evaluation pass.
type Result struct {
	Evaluated int
	Skipped   int
	Issued    int
	Failed    int
}

// Target returns the state schedule asks for at now. ok is false when the
// schedule has no opinion: inactive, dangling, masked out, before its
// window, or ended on an earlier day. now must already be in the location
// schedule times are written in.
func Target(schedule models.RelaySchedule, now time.Time) (target, ok bool, err error) {
	if !schedule.IsActive || schedule.Relay == nil {
		return false, false, nil
	}
	if !schedule.ActiveOn(now.Weekday()) {
		return false, false, nil
	}
	tod, err := models.ParseTimeOfDay(schedule.StartTime)
	if err != nil {
		return false, false, err
	}

	start := tod.On(now)
	end := start.Add(time.Duration(schedule.DurationMinutes) * time.Minute)

	switch {
	case now.Before(start):
		return false, false, nil
	case now.Before(end):
		return true, true, nil
	case sameDay(now, start):
		return false, true, nil
	default:
		return false, false, nil
	}
}

// Decide returns the command a single schedule calls for at now. It returns
// ActionNone when nothing should change, including when the target equals
// the relay's recorded desired state.
func Decide(schedule models.RelaySchedule, now time.Time) (Action, error) {
	target, ok, err := Target(schedule, now)
	if err != nil || !ok {
		return ActionNone, err
	}
	return actionFor(target, schedule.Relay.DesiredState), nil
}

func actionFor(target, desired bool) Action {
	switch {
	case target == desired:
		return ActionNone
	case target:
		return ActionOn
	default:
		return ActionOff
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// relayPlan merges every schedule of one relay into a single target. An
// open window wins over one that ended earlier today.
type relayPlan struct {
	relay   models.Relay
	on      bool
	off     bool
	cause   models.RelaySchedule
	decided bool
}

func (p *relayPlan) add(s models.RelaySchedule, target bool) {
	switch {
	case target && !p.on:
		p.on, p.cause, p.decided = true, s, true
	case !target && !p.on && !p.off:
		p.off, p.cause, p.decided = true, s, true
	}
}

func (p *relayPlan) target() bool { return p.on }

// Evaluator runs every active schedule against the clock and issues at most
// one command per relay per pass.
type Evaluator struct {
	schedules ScheduleSource
	commands  Commander
	loc       *time.Location
	lg        *slog.Logger
}

// NewEvaluator creates a new Evaluator reading schedule times in loc.
func NewEvaluator(schedules ScheduleSource, commands Commander, loc *time.Location, lg *slog.Logger) *Evaluator {
	if loc == nil {
		loc = time.Local
	}
	if lg == nil {
		lg = slog.New(slog.DiscardHandler)
	}
	return &Evaluator{schedules: schedules, commands: commands, loc: loc, lg: lg.With("component", "scheduler")}
}

// Evaluate performs one pass at now. Schedules sharing a relay are merged so
// the relay gets one target per pass. Only a failure to list schedules is
// returned; per-schedule and per-relay failures are logged and counted.
func (e *Evaluator) Evaluate(ctx context.Context, now time.Time) (Result, error) {
	var res Result
	schedules, err := e.schedules.ListActiveSchedulesWithRelay(ctx)
	if err != nil {
		return res, fmt.Errorf("scheduler: list schedules: %w", err)
	}

	local := now.In(e.loc)
	plans := make(map[uint]*relayPlan)
	var order []uint
	for _, s := range schedules {
		res.Evaluated++
		if s.Relay == nil {
			e.lg.Warn("schedule relay not found", "schedule_id", s.ID, "relay_id", s.RelayID)
			res.Skipped++
			continue
		}

		plan, seen := plans[s.Relay.ID]
		if !seen {
			plan = &relayPlan{relay: *s.Relay}
			plans[s.Relay.ID] = plan
			order = append(order, s.Relay.ID)
		}

		target, ok, err := e.target(s, local)
		switch {
		case err != nil:
			e.lg.Error("schedule evaluation failed", "schedule_id", s.ID, "error", err)
			res.Failed++
		case ok:
			plan.add(s, target)
		}
	}

	for _, id := range order {
		plan := plans[id]
		if !plan.decided {
			continue
		}
		issued, err := e.apply(ctx, plan)
		switch {
		case err != nil:
			e.lg.Error("relay command failed",
				"relay_id", id,
				"device_id", plan.relay.DeviceID,
				"relay_channel", plan.relay.RelayChannel,
				"error", err,
			)
			res.Failed++
		case issued:
			res.Issued++
		}
	}
	return res, nil
}

func (e *Evaluator) target(s models.RelaySchedule, now time.Time) (target, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return Target(s, now)
}

func (e *Evaluator) apply(ctx context.Context, plan *relayPlan) (issued bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	relay := plan.relay
	action := actionFor(plan.target(), relay.DesiredState)
	if action == ActionNone {
		return false, nil
	}
	if err := e.commands.Issue(ctx, relay.DeviceID, relay.RelayChannel, action == ActionOn); err != nil {
		return false, err
	}
	e.lg.Info("schedule fired",
		"schedule_id", plan.cause.ID,
		"schedule_name", plan.cause.ScheduleName,
		"device_id", relay.DeviceID,
		"relay_channel", relay.RelayChannel,
		"action", action.String(),
	)
	if action == ActionOn {
		e.commands.RequestSnapshot(relay.DeviceID)
	}
	return true, nil
}
