package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"emlak-aggregator/internal/models"
	"emlak-aggregator/internal/normalize"
	"emlak-aggregator/internal/parser"
)

// Outcome is what an upsert did to the listing row
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeUpdated
	OutcomeUnchanged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// PageStats counts the outcomes of one committed page. Changed holds the
// rows that were created or updated.
type PageStats struct {
	Created   int
	Updated   int
	Unchanged int
	Changed   []models.Listing
}

// Total is the number of records in the page
func (p PageStats) Total() int {
	return p.Created + p.Updated + p.Unchanged
}

// ContentHash digests the non-price canonical fields of a record. A price
// change leaves it untouched.
func ContentHash(rec parser.Record) string {
	keys := make([]string, 0, len(rec.Details))
	for k := range rec.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	details := make([]string, 0, len(keys))
	for _, k := range keys {
		details = append(details, canonical(k)+"="+canonical(rec.Details[k]))
	}

	location := canonical(rec.Province) + "/" + canonical(rec.District) + "/" + canonical(rec.Neighborhood)
	payload := strings.Join([]string{
		field(rec.Title),
		location,
		field(string(rec.Category)),
		field(string(rec.ListingType)),
		field(rec.Subcategory),
		field(strings.Join(details, ",")),
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func canonical(s string) string {
	return strings.Join(strings.Fields(normalize.Lower(s)), " ")
}

func field(s string) string {
	if c := canonical(s); c != "" {
		return c
	}
	return "null"
}

// UpsertListing stores one record and updates the session counters in the
// same transaction. A unique violation from a concurrent writer of the same
// URL is replayed, which then takes the update branch.
func (s *Store) UpsertListing(ctx context.Context, sessionID uint, rec parser.Record) (Outcome, *models.Listing, error) {
	if strings.TrimSpace(rec.URL) == "" {
		return 0, nil, errors.New("record has no source url")
	}
	hash := ContentHash(rec)

	var (
		outcome Outcome
		row     *models.Listing
		err     error
	)
	for attempt := 0; attempt < 2; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var txErr error
			outcome, row, txErr = s.upsert(tx, sessionID, rec, hash)
			if txErr != nil {
				return txErr
			}
			col := map[Outcome]string{
				OutcomeCreated:   "new_listings",
				OutcomeUpdated:   "updated_listings",
				OutcomeUnchanged: "duplicate_listings",
			}[outcome]
			return counters(tx, sessionID, map[string]int{"total_listings": 1, col: 1})
		})
		if err == nil || !isUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to upsert listing %s: %w", rec.URL, err)
	}
	return outcome, row, nil
}

func (s *Store) upsert(tx *gorm.DB, sessionID uint, rec parser.Record, hash string) (Outcome, *models.Listing, error) {
	now := s.now()

	var existing models.Listing
	err := tx.Where("source_url = ?", rec.URL).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		loc, err := resolveLocation(tx, rec.Province, rec.District, rec.Neighborhood)
		if err != nil {
			return 0, nil, err
		}
		row := &models.Listing{
			Title:       rec.Title,
			Price:       rec.Price,
			PriceText:   rec.PriceText,
			Platform:    string(rec.Platform),
			Category:    string(rec.Category),
			ListingType: string(rec.ListingType),
			Subcategory: rec.Subcategory,
			LocationID:  loc.ID,
			SourceURL:   rec.URL,
			PostedAt:    rec.PostedAt,
			Agency:      rec.Agency,
			ImageURL:    rec.ImageURL,
			Details:     models.NewDetails(rec.Details),
			Featured:    rec.Featured,
			IsNew:       rec.New,
			ContentHash: hash,
			SessionID:   sessionRef(sessionID),
			LastSeenAt:  now,
		}
		if err := tx.Create(row).Error; err != nil {
			return 0, nil, err
		}
		row.Location = loc
		return OutcomeCreated, row, nil
	}
	if err != nil {
		return 0, nil, err
	}

	priceChanged := rec.Price != nil && (existing.Price == nil || *existing.Price != *rec.Price)
	if existing.ContentHash == hash && !priceChanged {
		return OutcomeUnchanged, &existing, nil
	}

	updates := map[string]interface{}{
		"title":        rec.Title,
		"price_text":   rec.PriceText,
		"subcategory":  rec.Subcategory,
		"posted_at":    rec.PostedAt,
		"agency":       rec.Agency,
		"image_url":    rec.ImageURL,
		"details":      models.NewDetails(rec.Details),
		"featured":     rec.Featured,
		"is_new":       rec.New,
		"content_hash": hash,
		"last_seen_at": now,
		"updated_at":   now,
	}
	if sessionID != 0 {
		updates["session_id"] = sessionID
	}
	if priceChanged {
		updates["price"] = *rec.Price
	}
	if err := tx.Model(&existing).UpdateColumns(updates).Error; err != nil {
		return 0, nil, err
	}

	if priceChanged && existing.Price != nil {
		h := models.NewPriceHistory(existing.ID, *existing.Price, *rec.Price, now)
		if err := tx.Create(&h).Error; err != nil {
			return 0, nil, err
		}
	}

	if err := tx.Preload("Location").First(&existing, existing.ID).Error; err != nil {
		return 0, nil, err
	}
	return OutcomeUpdated, &existing, nil
}

// resolveLocation finds or creates the location triple. Rows are never
// updated, so a concurrent insert of the same triple is resolved by reading
// it back.
func resolveLocation(tx *gorm.DB, province, district, neighborhood string) (*models.Location, error) {
	loc := &models.Location{
		Province:     strings.TrimSpace(province),
		District:     strings.TrimSpace(district),
		Neighborhood: strings.TrimSpace(neighborhood),
	}
	where := "province = ? AND district = ? AND neighborhood = ?"

	err := tx.Where(where, loc.Province, loc.District, loc.Neighborhood).First(loc).Error
	if err == nil {
		return loc, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(loc)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to create location %s: %w", loc.Key(), res.Error)
	}
	if res.RowsAffected == 0 {
		key := *loc
		*loc = models.Location{}
		if err := tx.Where(where, key.Province, key.District, key.Neighborhood).First(loc).Error; err != nil {
			return nil, err
		}
	}
	return loc, nil
}

// CommitPage upserts a page of records and counts the page as successful
func (s *Store) CommitPage(ctx context.Context, sessionID uint, records []parser.Record) (PageStats, error) {
	var stats PageStats
	for _, rec := range records {
		outcome, row, err := s.UpsertListing(ctx, sessionID, rec)
		if err != nil {
			return stats, err
		}
		switch outcome {
		case OutcomeCreated:
			stats.Created++
			stats.Changed = append(stats.Changed, *row)
		case OutcomeUpdated:
			stats.Updated++
			stats.Changed = append(stats.Changed, *row)
		default:
			stats.Unchanged++
		}
	}
	if err := counters(s.db.WithContext(ctx), sessionID, map[string]int{"successful_pages": 1}); err != nil {
		return stats, fmt.Errorf("failed to count page: %w", err)
	}
	return stats, nil
}

func sessionRef(id uint) *uint {
	if id == 0 {
		return nil
	}
	return &id
}

// isUniqueViolation recognises duplicate-key errors of every supported
// dialect
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || mysqlDuplicate(err) || postgresDuplicate(err) || sqliteDuplicate(err)
}

func (s *Store) setClock(now func() time.Time) {
	s.now = now
}
