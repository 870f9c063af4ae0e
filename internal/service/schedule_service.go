package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"CapIot.relaysync/internal/models"
	"CapIot.relaysync/internal/repository"
)

// lastWindowEnd is the latest second of the day a window may end at and
// still be switched off on the day it started.
const lastWindowEnd = 23*3600 + 59*60

// ScheduleInput carries the writable schedule fields. Nil fields are left
// unchanged on update and defaulted on create.
type ScheduleInput struct {
	RelayID         *uint   `json:"relayId"`
	ScheduleName    *string `json:"scheduleName"`
	StartTime       *string `json:"startTime"`
	DurationMinutes *int    `json:"durationMinutes"`
	DaysOfWeek      *string `json:"daysOfWeek"`
	IsActive        *bool   `json:"isActive"`
}

type scheduleStore interface {
	repository.ScheduleRepository
	GetRelay(ctx context.Context, id uint) (models.Relay, error)
}

// ScheduleService owns schedule lifecycle and the validation the evaluator
// relies on.
type ScheduleService struct {
	store scheduleStore
	lg    *slog.Logger
}

// NewScheduleService creates a new ScheduleService.
func NewScheduleService(store scheduleStore, lg *slog.Logger) *ScheduleService {
	return &ScheduleService{store: store, lg: lg.With("component", "schedules")}
}

// List returns schedules matching filter.
func (s *ScheduleService) List(ctx context.Context, filter repository.ScheduleFilter) ([]models.RelaySchedule, error) {
	return s.store.ListSchedules(ctx, filter)
}

// Get returns one schedule.
func (s *ScheduleService) Get(ctx context.Context, id uint) (models.RelaySchedule, error) {
	return s.store.GetSchedule(ctx, id)
}

// Create validates in and stores a new schedule. A missing relay yields
// repository.ErrNotFound.
func (s *ScheduleService) Create(ctx context.Context, in ScheduleInput) (models.RelaySchedule, error) {
	switch {
	case in.RelayID == nil || *in.RelayID == 0:
		return models.RelaySchedule{}, invalid("relayId", "is required")
	case in.StartTime == nil || *in.StartTime == "":
		return models.RelaySchedule{}, invalid("startTime", "is required")
	case in.DurationMinutes == nil:
		return models.RelaySchedule{}, invalid("durationMinutes", "is required")
	}

	if err := s.relayExists(ctx, *in.RelayID); err != nil {
		return models.RelaySchedule{}, err
	}

	schedule := models.RelaySchedule{DaysOfWeek: models.AllDays, IsActive: true}
	apply(&schedule, in)
	if err := validateSchedule(schedule); err != nil {
		return models.RelaySchedule{}, err
	}
	if err := s.store.CreateSchedule(ctx, &schedule); err != nil {
		return models.RelaySchedule{}, err
	}
	s.lg.Info("schedule created", "schedule_id", schedule.ID, "relay_id", schedule.RelayID, "start_time", schedule.StartTime)
	return schedule, nil
}

// Update applies the non-nil fields of in to schedule id.
func (s *ScheduleService) Update(ctx context.Context, id uint, in ScheduleInput) (models.RelaySchedule, error) {
	schedule, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return models.RelaySchedule{}, err
	}
	if in.RelayID != nil && *in.RelayID != schedule.RelayID {
		if err := s.relayExists(ctx, *in.RelayID); err != nil {
			return models.RelaySchedule{}, err
		}
	}

	apply(&schedule, in)
	if err := validateSchedule(schedule); err != nil {
		return models.RelaySchedule{}, err
	}
	schedule.Relay = nil
	if err := s.store.UpdateSchedule(ctx, &schedule); err != nil {
		return models.RelaySchedule{}, err
	}
	s.lg.Info("schedule updated", "schedule_id", schedule.ID)
	return schedule, nil
}

// Delete removes a schedule.
func (s *ScheduleService) Delete(ctx context.Context, id uint) error {
	if err := s.store.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	s.lg.Info("schedule deleted", "schedule_id", id)
	return nil
}

func (s *ScheduleService) relayExists(ctx context.Context, relayID uint) error {
	_, err := s.store.GetRelay(ctx, relayID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("relay %d: %w", relayID, repository.ErrNotFound)
	}
	return err
}

func apply(schedule *models.RelaySchedule, in ScheduleInput) {
	if in.RelayID != nil {
		schedule.RelayID = *in.RelayID
	}
	if in.ScheduleName != nil {
		schedule.ScheduleName = *in.ScheduleName
	}
	if in.StartTime != nil {
		schedule.StartTime = *in.StartTime
	}
	if in.DurationMinutes != nil {
		schedule.DurationMinutes = *in.DurationMinutes
	}
	if in.DaysOfWeek != nil && *in.DaysOfWeek != "" {
		schedule.DaysOfWeek = *in.DaysOfWeek
	}
	if in.IsActive != nil {
		schedule.IsActive = *in.IsActive
	}
}

// validateSchedule rejects anything the evaluator cannot act on. Windows
// must end by 23:59:00 so the off transition falls on the start day.
func validateSchedule(s models.RelaySchedule) error {
	if s.DurationMinutes <= 0 {
		return invalid("durationMinutes", "must be a positive number")
	}
	start, err := models.ParseTimeOfDay(s.StartTime)
	if err != nil {
		return invalid("startTime", "must be HH:MM:SS with hours 00-23 and minutes and seconds 00-59")
	}
	if !models.ValidDaysMask(s.DaysOfWeek) {
		return invalid("daysOfWeek", "must be 7 binary digits (e.g. \"1111111\")")
	}
	if start.SecondsOfDay()+s.DurationMinutes*60 > lastWindowEnd {
		return invalid("durationMinutes", "window starting %s must end by 23:59:00", start)
	}
	return nil
}
