package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"emlak-aggregator/internal/models"
)

// RecordFailedPage inserts a failed page, or refreshes the session's row
// for its URL. A resolved row that fails again is reopened with a fresh
// retry budget. The session's failed_pages counter moves only for a new
// row.
func (s *Store) RecordFailedPage(ctx context.Context, fp *models.FailedPage) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.FailedPage
		err := tx.Where("session_id = ? AND url = ?", fp.SessionID, fp.URL).Limit(1).Find(&existing).Error
		if err != nil {
			return err
		}
		if existing.ID == 0 {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(fp)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			created = true
			return counters(tx, fp.SessionID, map[string]int{"failed_pages": 1})
		}

		updates := map[string]interface{}{"error": fp.Error}
		if existing.Resolved {
			updates["resolved"] = false
			updates["resolved_at"] = nil
			updates["retry_count"] = 0
		}
		fp.ID = existing.ID
		return tx.Model(&models.FailedPage{}).Where("id = ?", existing.ID).UpdateColumns(updates).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to record failed page %s: %w", fp.URL, err)
	}
	return created, nil
}

// PendingFailedPages returns the unresolved pages of a session that still
// have retries left
func (s *Store) PendingFailedPages(ctx context.Context, sessionID uint, maxRetries int) ([]models.FailedPage, error) {
	var pages []models.FailedPage
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND resolved = ? AND retry_count < ?", sessionID, false, maxRetries).
		Order("id").
		Find(&pages).Error
	return pages, err
}

// ResolveFailedPage marks a page recovered
func (s *Store) ResolveFailedPage(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.FailedPage{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{"resolved": true, "resolved_at": s.now()}).Error
}

// IncrementFailedPageRetry counts one more failed attempt, never past
// maxRetries, and returns the resulting count
func (s *Store) IncrementFailedPageRetry(ctx context.Context, id uint, maxRetries int) (int, error) {
	var count int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.FailedPage{}).
			Where("id = ? AND retry_count < ?", id, maxRetries).
			UpdateColumn("retry_count", gorm.Expr("retry_count + 1")).Error; err != nil {
			return err
		}
		var fp models.FailedPage
		if err := tx.Select("retry_count").First(&fp, id).Error; err != nil {
			return err
		}
		count = fp.RetryCount
		return nil
	})
	return count, err
}

// FailedPagesForSession returns every failed page of a session
func (s *Store) FailedPagesForSession(ctx context.Context, sessionID uint) ([]models.FailedPage, error) {
	var pages []models.FailedPage
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("id").Find(&pages).Error
	return pages, err
}

// PurgeResolvedFailedPages deletes resolved rows older than cutoff
func (s *Store) PurgeResolvedFailedPages(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("resolved = ? AND resolved_at < ?", true, cutoff).
		Delete(&models.FailedPage{})
	return res.RowsAffected, res.Error
}
