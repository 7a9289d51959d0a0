package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"emlak-aggregator/internal/models"
)

// SessionParams describes the job a session is opened for
type SessionParams struct {
	TaskID      string
	Platform    string
	Category    string
	ListingType string
	Subcategory string
	Cities      []string
	Districts   map[string][]string
}

// StartSession returns the session of params.TaskID, creating it in the
// running state the first time. A redelivered job gets its existing row back.
func (s *Store) StartSession(ctx context.Context, params SessionParams) (*models.ScrapeSession, bool, error) {
	db := s.db.WithContext(ctx)

	var existing models.ScrapeSession
	err := db.Where("task_id = ?", params.TaskID).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to look up session: %w", err)
	}

	cities := params.Cities
	if cities == nil {
		cities = []string{}
	}
	districts := params.Districts
	if districts == nil {
		districts = map[string][]string{}
	}
	session := &models.ScrapeSession{
		TaskID:          params.TaskID,
		Platform:        params.Platform,
		Category:        params.Category,
		ListingType:     params.ListingType,
		Subcategory:     params.Subcategory,
		TargetCities:    datatypes.NewJSONType(cities),
		TargetDistricts: datatypes.NewJSONType(districts),
		Status:          models.SessionStatusRunning,
		StartedAt:       s.now(),
	}
	if err := db.Create(session).Error; err != nil {
		if isUniqueViolation(err) {
			if err := db.Where("task_id = ?", params.TaskID).First(&existing).Error; err != nil {
				return nil, false, err
			}
			return &existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create session: %w", err)
	}
	return session, true, nil
}

// FinalizeSession moves a running session to a terminal status. A session
// that is already terminal is left as it is and false is returned.
func (s *Store) FinalizeSession(ctx context.Context, id uint, status models.SessionStatus, errMsg string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("status %q is not terminal", status)
	}
	res := s.db.WithContext(ctx).Model(&models.ScrapeSession{}).
		Where("id = ? AND status = ?", id, models.SessionStatusRunning).
		UpdateColumns(map[string]interface{}{
			"status":        status,
			"error_message": errMsg,
			"completed_at":  s.now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to finalize session %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// GetSession returns a session by id
func (s *Store) GetSession(ctx context.Context, id uint) (*models.ScrapeSession, error) {
	var session models.ScrapeSession
	if err := s.db.WithContext(ctx).First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// GetSessionByTask returns the session opened for a task id
func (s *Store) GetSessionByTask(ctx context.Context, taskID string) (*models.ScrapeSession, error) {
	var session models.ScrapeSession
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// ListSessions returns the most recently started sessions
func (s *Store) ListSessions(ctx context.Context, limit int) ([]models.ScrapeSession, error) {
	if limit <= 0 {
		limit = 20
	}
	var sessions []models.ScrapeSession
	err := s.db.WithContext(ctx).Order("started_at DESC, id DESC").Limit(limit).Find(&sessions).Error
	return sessions, err
}

// FinalizeStaleSessions times out running sessions started before cutoff.
// They belong to workers that died without finalizing.
func (s *Store) FinalizeStaleSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.ScrapeSession{}).
		Where("status = ? AND started_at < ?", models.SessionStatusRunning, cutoff).
		UpdateColumns(map[string]interface{}{
			"status":        models.SessionStatusTimeout,
			"error_message": "session abandoned by its worker",
			"completed_at":  s.now(),
		})
	return res.RowsAffected, res.Error
}
