// Package scheduler implements the task scheduler external collaborator
// (spec.md §4.6, SPEC_FULL.md §4.6): persisted tasks fired by wall-clock
// time (exact/periodic/cron) and delivered to a per-client handler
// through a bounded FIFO.
package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// TimeKind selects which field of TimeSpec is meaningful.
type TimeKind int

const (
	TimeExact TimeKind = iota
	TimePeriodic
	TimeCron
)

func (k TimeKind) String() string {
	switch k {
	case TimeExact:
		return "exact"
	case TimePeriodic:
		return "periodic"
	case TimeCron:
		return "cron"
	default:
		return "unknown"
	}
}

// MinPeriod is the minimum accepted periodic interval (spec.md §4.6).
const MinPeriod = time.Second

// cronAliases maps the cron(8)-style nicknames spec.md §4.6 names onto
// either a six-field (seconds-first) cron expression or, for @reboot, a
// sentinel the scheduler special-cases, following original_source's
// src/Scheduler/ScheduleRecord.h comment block. robfig/cron/v3 already
// understands @yearly/@annually/@monthly/@weekly/@daily/@hourly/@every as
// descriptors; @reboot and @minutely have no robfig equivalent.
// cronParser accepts five fields, or six with a leading seconds field; a
// seven-field expression (with a trailing year field) is rejected.
var cronAliases = map[string]string{
	"@minutely": "0 * * * * *",
}

const cronRebootAlias = "@reboot"

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// TimeSpec describes when a task fires. Exactly one of At, Period, Cron is
// meaningful, selected by Kind.
type TimeSpec struct {
	Kind   TimeKind
	At     time.Time
	Period time.Duration
	Cron   string

	schedule cron.Schedule // parsed form of Cron, nil for @reboot
	reboot   bool
}

// ExactTime builds a one-shot TimeSpec.
func ExactTime(at time.Time) TimeSpec {
	return TimeSpec{Kind: TimeExact, At: at}
}

// PeriodicTime builds a periodic TimeSpec; period is clamped to MinPeriod.
func PeriodicTime(period time.Duration) TimeSpec {
	if period < MinPeriod {
		period = MinPeriod
	}
	return TimeSpec{Kind: TimePeriodic, Period: period}
}

// CronTime builds a cron TimeSpec, parsing expr immediately so construction
// fails fast on malformed input.
func CronTime(expr string) (TimeSpec, error) {
	ts := TimeSpec{Kind: TimeCron, Cron: expr}
	if err := ts.parseCron(); err != nil {
		return TimeSpec{}, err
	}
	return ts, nil
}

func (ts *TimeSpec) parseCron() error {
	expr := ts.Cron
	if expr == cronRebootAlias {
		ts.reboot = true
		return nil
	}
	if alias, ok := cronAliases[expr]; ok {
		expr = alias
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("scheduler: parse cron expression %q: %w", ts.Cron, err)
	}
	ts.schedule = schedule
	return nil
}

// next computes the first fire time strictly after from. For TimeExact it
// returns At unchanged once (the caller disables the task after it fires).
func (ts TimeSpec) next(from time.Time) time.Time {
	switch ts.Kind {
	case TimeExact:
		return ts.At
	case TimePeriodic:
		return from.Add(ts.Period)
	case TimeCron:
		if ts.reboot {
			return from
		}
		return ts.schedule.Next(from)
	default:
		return from
	}
}

// Task is one scheduled unit of work, addressed by (ClientID, TaskID) per
// spec.md §4.6.
type Task struct {
	ClientID    string
	TaskID      uuid.UUID
	Description string
	TimeSpec    TimeSpec
	Persist     bool
	Enabled     bool
	Payload     json.RawMessage

	nextFire time.Time
	fired    bool // true once a TimeExact/@reboot task has fired
}

// wireTimeSpec is the on-disk JSON shape of a TimeSpec (spec.md §4.6:
// "body is JSON with ... the serialized cron / start-time").
type wireTimeSpec struct {
	Kind   string     `json:"kind"`
	At     *time.Time `json:"at,omitempty"`
	Period *string    `json:"period,omitempty"`
	Cron   string     `json:"cron,omitempty"`
}

// wireTask is the on-disk JSON shape of one task file (spec.md §4.6:
// "{clientId, taskId, description, task, timeSpec, persist, enabled}").
type wireTask struct {
	ClientID    string          `json:"clientId"`
	TaskID      string          `json:"taskId"`
	Description string          `json:"description"`
	Task        json.RawMessage `json:"task"`
	TimeSpec    wireTimeSpec    `json:"timeSpec"`
	Persist     bool            `json:"persist"`
	Enabled     bool            `json:"enabled"`
}

func (t *Task) marshalWire() (wireTask, error) {
	ts := wireTimeSpec{Kind: t.TimeSpec.Kind.String()}
	switch t.TimeSpec.Kind {
	case TimeExact:
		at := t.TimeSpec.At
		ts.At = &at
	case TimePeriodic:
		period := t.TimeSpec.Period.String()
		ts.Period = &period
	case TimeCron:
		ts.Cron = t.TimeSpec.Cron
	}

	return wireTask{
		ClientID:    t.ClientID,
		TaskID:      t.TaskID.String(),
		Description: t.Description,
		Task:        t.Payload,
		TimeSpec:    ts,
		Persist:     t.Persist,
		Enabled:     t.Enabled,
	}, nil
}

func unmarshalWire(w wireTask) (*Task, error) {
	id, err := uuid.Parse(w.TaskID)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse task id %q: %w", w.TaskID, err)
	}

	var ts TimeSpec
	switch w.TimeSpec.Kind {
	case TimeExact.String():
		if w.TimeSpec.At == nil {
			return nil, fmt.Errorf("scheduler: exact task %s missing at", id)
		}
		ts = ExactTime(*w.TimeSpec.At)
	case TimePeriodic.String():
		if w.TimeSpec.Period == nil {
			return nil, fmt.Errorf("scheduler: periodic task %s missing period", id)
		}
		period, err := time.ParseDuration(*w.TimeSpec.Period)
		if err != nil {
			return nil, fmt.Errorf("scheduler: parse period for task %s: %w", id, err)
		}
		ts = PeriodicTime(period)
	case TimeCron.String():
		parsed, err := CronTime(w.TimeSpec.Cron)
		if err != nil {
			return nil, fmt.Errorf("scheduler: task %s: %w", id, err)
		}
		ts = parsed
	default:
		return nil, fmt.Errorf("scheduler: task %s has unknown timeSpec kind %q", id, w.TimeSpec.Kind)
	}

	return &Task{
		ClientID:    w.ClientID,
		TaskID:      id,
		Description: w.Description,
		TimeSpec:    ts,
		Persist:     w.Persist,
		Enabled:     w.Enabled,
		Payload:     w.Task,
	}, nil
}

// legacyTaskUUID migrates a legacy integer task ID to a deterministic UUID
// (spec.md §4.6: "legacy integer IDs are migrated on load"), matching the
// convention of hashing a fixed namespace with the legacy identifier so
// re-migrating the same integer always yields the same UUID.
var legacyTaskNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

func legacyTaskUUID(clientID string, legacyID int) uuid.UUID {
	name := fmt.Sprintf("%s/%d", clientID, legacyID)
	return uuid.NewSHA1(legacyTaskNamespace, []byte(name))
}
