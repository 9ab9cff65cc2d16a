package splitter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iqrf/iqmesh-gateway/internal/scheduler"
)

// Scheduler admin mTypes (SPEC_FULL.md §7: scheduler administrative
// messages, mirroring original_source's
// src/JsonMngApi/Messages/Scheduler*Msg.* one mType per operation).
const (
	SchedulerAddTaskMType     = "mngScheduler_AddTask"
	SchedulerEditTaskMType    = "mngScheduler_EditTask"
	SchedulerGetTaskMType     = "mngScheduler_GetTask"
	SchedulerListMType        = "mngScheduler_List"
	SchedulerRemoveTaskMType  = "mngScheduler_RemoveTask"
	SchedulerRemoveAllMType   = "mngScheduler_RemoveAll"
	SchedulerChangeStateMType = "mngScheduler_ChangeTaskState"
)

// wireTimeSpec is the JSON shape of a TimeSpec as carried in a scheduler
// admin request/response.
type wireTimeSpecReq struct {
	Kind   string  `json:"kind"`
	At     *string `json:"at,omitempty"`
	Period *string `json:"period,omitempty"`
	Cron   string  `json:"cron,omitempty"`
}

func (w wireTimeSpecReq) toTimeSpec() (scheduler.TimeSpec, error) {
	switch w.Kind {
	case "exact":
		if w.At == nil {
			return scheduler.TimeSpec{}, fmt.Errorf("splitter: exact timeSpec missing at")
		}
		at, err := time.Parse(time.RFC3339, *w.At)
		if err != nil {
			return scheduler.TimeSpec{}, fmt.Errorf("splitter: parse at: %w", err)
		}
		return scheduler.ExactTime(at), nil
	case "periodic":
		if w.Period == nil {
			return scheduler.TimeSpec{}, fmt.Errorf("splitter: periodic timeSpec missing period")
		}
		d, err := time.ParseDuration(*w.Period)
		if err != nil {
			return scheduler.TimeSpec{}, fmt.Errorf("splitter: parse period: %w", err)
		}
		return scheduler.PeriodicTime(d), nil
	case "cron":
		return scheduler.CronTime(w.Cron)
	default:
		return scheduler.TimeSpec{}, fmt.Errorf("splitter: unknown timeSpec kind %q", w.Kind)
	}
}

func fromTimeSpec(ts scheduler.TimeSpec) wireTimeSpecReq {
	out := wireTimeSpecReq{}
	switch ts.Kind {
	case scheduler.TimeExact:
		out.Kind = "exact"
		at := ts.At.Format(time.RFC3339)
		out.At = &at
	case scheduler.TimePeriodic:
		out.Kind = "periodic"
		period := ts.Period.String()
		out.Period = &period
	case scheduler.TimeCron:
		out.Kind = "cron"
		out.Cron = ts.Cron
	}
	return out
}

type schedulerTaskWire struct {
	TaskID      string          `json:"taskId"`
	ClientID    string          `json:"clientId"`
	Description string          `json:"description,omitempty"`
	TimeSpec    wireTimeSpecReq `json:"timeSpec"`
	Persist     bool            `json:"persist"`
	Enabled     bool            `json:"enabled"`
	Task        json.RawMessage `json:"task,omitempty"`
}

func fromTask(t scheduler.Task) schedulerTaskWire {
	return schedulerTaskWire{
		TaskID:      t.TaskID.String(),
		ClientID:    t.ClientID,
		Description: t.Description,
		TimeSpec:    fromTimeSpec(t.TimeSpec),
		Persist:     t.Persist,
		Enabled:     t.Enabled,
		Task:        t.Payload,
	}
}

// RegisterSchedulerHandlers wires the scheduler's administrative
// operations onto bus, one mType per operation (SPEC_FULL.md §7).
func RegisterSchedulerHandlers(bus *Bus, sched *scheduler.Scheduler) {
	bus.Handle(SchedulerAddTaskMType, func(ctx context.Context, msgID string, verbose bool, timeoutMs *int, raw json.RawMessage) (any, error) {
		var req schedulerTaskWire
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("splitter: parse add-task request: %w", err)
		}
		ts, err := req.TimeSpec.toTimeSpec()
		if err != nil {
			return nil, err
		}
		id, err := sched.AddTask(scheduler.AddTaskInput{
			ClientID:    req.ClientID,
			Description: req.Description,
			TimeSpec:    ts,
			Persist:     req.Persist,
			Task:        req.Task,
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{"taskId": id.String()}, nil
	})

	bus.Handle(SchedulerEditTaskMType, func(ctx context.Context, msgID string, verbose bool, timeoutMs *int, raw json.RawMessage) (any, error) {
		var req schedulerTaskWire
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("splitter: parse edit-task request: %w", err)
		}
		id, err := uuid.Parse(req.TaskID)
		if err != nil {
			return nil, fmt.Errorf("splitter: parse taskId: %w", err)
		}
		ts, err := req.TimeSpec.toTimeSpec()
		if err != nil {
			return nil, err
		}
		if err := sched.EditTask(id, scheduler.EditTaskInput{
			Description: req.Description,
			TimeSpec:    ts,
			Persist:     req.Persist,
			Task:        req.Task,
		}); err != nil {
			return nil, err
		}
		return map[string]string{"taskId": id.String()}, nil
	})

	bus.Handle(SchedulerGetTaskMType, func(ctx context.Context, msgID string, verbose bool, timeoutMs *int, raw json.RawMessage) (any, error) {
		var req struct {
			TaskID string `json:"taskId"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("splitter: parse get-task request: %w", err)
		}
		id, err := uuid.Parse(req.TaskID)
		if err != nil {
			return nil, fmt.Errorf("splitter: parse taskId: %w", err)
		}
		t, err := sched.GetTask(id)
		if err != nil {
			return nil, err
		}
		return fromTask(t), nil
	})

	bus.Handle(SchedulerListMType, func(ctx context.Context, msgID string, verbose bool, timeoutMs *int, raw json.RawMessage) (any, error) {
		var req struct {
			ClientID string `json:"clientId,omitempty"`
		}
		_ = json.Unmarshal(raw, &req)

		tasks := sched.ListTasks(req.ClientID)
		out := make([]schedulerTaskWire, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, fromTask(t))
		}
		return out, nil
	})

	bus.Handle(SchedulerRemoveTaskMType, func(ctx context.Context, msgID string, verbose bool, timeoutMs *int, raw json.RawMessage) (any, error) {
		var req struct {
			TaskID string `json:"taskId"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("splitter: parse remove-task request: %w", err)
		}
		id, err := uuid.Parse(req.TaskID)
		if err != nil {
			return nil, fmt.Errorf("splitter: parse taskId: %w", err)
		}
		if err := sched.RemoveTask(id); err != nil {
			return nil, err
		}
		return nil, nil
	})

	bus.Handle(SchedulerRemoveAllMType, func(ctx context.Context, msgID string, verbose bool, timeoutMs *int, raw json.RawMessage) (any, error) {
		var req struct {
			ClientID string `json:"clientId,omitempty"`
		}
		_ = json.Unmarshal(raw, &req)
		return nil, sched.RemoveAllTasks(req.ClientID)
	})

	bus.Handle(SchedulerChangeStateMType, func(ctx context.Context, msgID string, verbose bool, timeoutMs *int, raw json.RawMessage) (any, error) {
		var req struct {
			TaskID  string `json:"taskId"`
			Enabled bool   `json:"enabled"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("splitter: parse change-state request: %w", err)
		}
		id, err := uuid.Parse(req.TaskID)
		if err != nil {
			return nil, fmt.Errorf("splitter: parse taskId: %w", err)
		}
		if err := sched.ChangeTaskState(id, req.Enabled); err != nil {
			return nil, err
		}
		return nil, nil
	})
}
