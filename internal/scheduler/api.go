package scheduler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AddTaskInput describes a new task, mirroring original_source's
// SchedulerAddTaskMsg.
type AddTaskInput struct {
	ClientID    string
	Description string
	TimeSpec    TimeSpec
	Persist     bool
	Task        json.RawMessage
}

// AddTask creates and schedules a new task, returning its generated ID.
func (s *Scheduler) AddTask(in AddTaskInput) (uuid.UUID, error) {
	t := &Task{
		ClientID:    in.ClientID,
		TaskID:      uuid.New(),
		Description: in.Description,
		TimeSpec:    in.TimeSpec,
		Persist:     in.Persist,
		Enabled:     true,
		Payload:     in.Task,
	}
	t.nextFire = t.TimeSpec.next(time.Now())

	s.mu.Lock()
	s.tasks[t.TaskID] = t
	s.mu.Unlock()

	if err := s.store.Save(t); err != nil {
		return uuid.Nil, err
	}
	return t.TaskID, nil
}

// EditTaskInput mirrors original_source's SchedulerEditTaskMsg: every
// field is applied as given, replacing the task wholesale except for its
// ID and client.
type EditTaskInput struct {
	Description string
	TimeSpec    TimeSpec
	Persist     bool
	Task        json.RawMessage
}

// EditTask replaces an existing task's schedule/payload in place.
func (s *Scheduler) EditTask(id uuid.UUID, in EditTaskInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}

	wasPersisted := t.Persist
	t.Description = in.Description
	t.TimeSpec = in.TimeSpec
	t.Persist = in.Persist
	t.Payload = in.Task
	t.nextFire = t.TimeSpec.next(time.Now())

	if wasPersisted && !t.Persist {
		if err := s.store.Remove(id); err != nil {
			return err
		}
	}
	return s.store.Save(t)
}

// GetTask returns a copy of the task with the given ID.
func (s *Scheduler) GetTask(id uuid.UUID) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return *t, nil
}

// ListTasks returns a copy of every task owned by clientID, or every task
// if clientID is empty.
func (s *Scheduler) ListTasks(clientID string) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if clientID != "" && t.ClientID != clientID {
			continue
		}
		out = append(out, *t)
	}
	return out
}

// RemoveTask removes one task, deleting its persisted file if any.
func (s *Scheduler) RemoveTask(id uuid.UUID) error {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()

	return s.store.Remove(id)
}

// RemoveAllTasks removes every task for clientID (or every task, if
// clientID is empty), mirroring original_source's SchedulerRemoveAllMsg.
func (s *Scheduler) RemoveAllTasks(clientID string) error {
	s.mu.Lock()
	var toRemove []uuid.UUID
	for id, t := range s.tasks {
		if clientID != "" && t.ClientID != clientID {
			continue
		}
		toRemove = append(toRemove, id)
	}
	for _, id := range toRemove {
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	if clientID == "" {
		return s.store.RemoveAll()
	}
	for _, id := range toRemove {
		if err := s.store.Remove(id); err != nil {
			return err
		}
	}
	return nil
}

// ChangeTaskState enables or disables a task without altering its
// schedule, mirroring original_source's SchedulerChangeTaskStateMsg.
func (s *Scheduler) ChangeTaskState(id uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}

	t.Enabled = enabled
	if enabled && !t.fired {
		t.nextFire = t.TimeSpec.next(time.Now())
	}
	return s.store.Save(t)
}
