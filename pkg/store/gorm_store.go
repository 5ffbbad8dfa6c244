package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"ariabackend/pkg/domain"
)

const migrateLockID int64 = 81428142

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &OTPModel{}, &ConversationModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// withMigrationLock serializes schema migration across concurrently starting
// replicas using a Postgres advisory lock.
func withMigrationLock(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", migrateLockID).Error; err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		return fn(tx)
	})
}

// users

func (s *GormStore) SaveUser(u domain.User) error {
	model, err := toUserModel(u)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		UpdateAll: true,
	}).Create(&model).Error
}

func (s *GormStore) HasUser(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) GetUser(email string) (domain.User, bool, error) {
	var model UserModel
	err := s.db.First(&model, "email = ?", email).Error
	if err == gorm.ErrRecordNotFound {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, err
	}
	user, err := toDomainUser(model)
	if err != nil {
		return domain.User{}, false, err
	}
	return user, true, nil
}

func (s *GormStore) AddDomain(email, dom string) (bool, error) {
	added := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model UserModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "email = ?", email).Error; err != nil {
			return err
		}
		domains, err := decodeStrings(model.Domains)
		if err != nil {
			return err
		}
		for _, existing := range domains {
			if existing == dom {
				return nil
			}
		}
		domains = append(domains, dom)
		encoded, err := encodeStrings(domains)
		if err != nil {
			return err
		}
		if err := tx.Model(&UserModel{}).Where("email = ?", email).
			Updates(map[string]any{"domains": encoded, "updated_at": time.Now().UTC()}).Error; err != nil {
			return err
		}
		added = true
		return nil
	})
	if err == gorm.ErrRecordNotFound {
		return false, ErrNotFound
	}
	return added, err
}

func (s *GormStore) SetFilterWords(email string, words []string, rewrite bool) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model UserModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "email = ?", email).Error; err != nil {
			return err
		}
		next := words
		if !rewrite {
			current, err := decodeStrings(model.FilterWords)
			if err != nil {
				return err
			}
			next = mergeStrings(current, words)
		}
		encoded, err := encodeStrings(next)
		if err != nil {
			return err
		}
		return tx.Model(&UserModel{}).Where("email = ?", email).
			Updates(map[string]any{"filter_words": encoded, "updated_at": time.Now().UTC()}).Error
	})
	if err == gorm.ErrRecordNotFound {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) GetFilterWords(email string) ([]string, error) {
	user, ok, err := s.GetUser(email)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return user.FilterWords, nil
}

func (s *GormStore) RecordToken(email, token string) error {
	res := s.db.Model(&UserModel{}).Where("email = ?", email).
		Updates(map[string]any{"api_token": token, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// otp

func (s *GormStore) UpsertOTP(rec domain.OTPRecord) error {
	model := OTPModel{
		Email:    rec.Email,
		CodeHash: rec.CodeHash,
		Purpose:  string(rec.Purpose),
		IssuedAt: rec.IssuedAt,
		Verified: rec.Verified,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		UpdateAll: true,
	}).Create(&model).Error
}

func (s *GormStore) GetOTP(email string) (domain.OTPRecord, bool, error) {
	var model OTPModel
	err := s.db.First(&model, "email = ?", email).Error
	if err == gorm.ErrRecordNotFound {
		return domain.OTPRecord{}, false, nil
	}
	if err != nil {
		return domain.OTPRecord{}, false, err
	}
	return domain.OTPRecord{
		Email:    model.Email,
		CodeHash: model.CodeHash,
		Purpose:  domain.OTPPurpose(model.Purpose),
		IssuedAt: model.IssuedAt,
		Verified: model.Verified,
	}, true, nil
}

func (s *GormStore) MarkOTPVerified(email string) error {
	res := s.db.Model(&OTPModel{}).Where("email = ?", email).Update("verified", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteOTP(email string) error {
	return s.db.Delete(&OTPModel{}, "email = ?", email).Error
}

// conversations

func (s *GormStore) AppendConversation(userID string, entry domain.ConversationEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	model := ConversationModel{
		ID:        entry.ID,
		UserID:    userID,
		Query:     entry.Query,
		Response:  entry.Response,
		CreatedAt: entry.CreatedAt,
	}
	return s.db.Create(&model).Error
}

func (s *GormStore) ListConversation(userID string, limit int) ([]domain.ConversationEntry, error) {
	query := s.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []ConversationModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	// Most recent entries, returned in chronological order.
	entries := make([]domain.ConversationEntry, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		m := models[i]
		entries = append(entries, domain.ConversationEntry{
			ID:        m.ID,
			UserID:    m.UserID,
			Query:     m.Query,
			Response:  m.Response,
			CreatedAt: m.CreatedAt,
		})
	}
	return entries, nil
}

// conversions

func toUserModel(u domain.User) (UserModel, error) {
	domains, err := encodeStrings(u.Domains)
	if err != nil {
		return UserModel{}, err
	}
	words, err := encodeStrings(u.FilterWords)
	if err != nil {
		return UserModel{}, err
	}
	return UserModel{
		Email:        u.Email,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Disabled:     u.Disabled,
		Domains:      domains,
		FilterWords:  words,
		APIToken:     u.APIToken,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}, nil
}

func toDomainUser(m UserModel) (domain.User, error) {
	domains, err := decodeStrings(m.Domains)
	if err != nil {
		return domain.User{}, err
	}
	words, err := decodeStrings(m.FilterWords)
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{
		Email:        m.Email,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Disabled:     m.Disabled,
		Domains:      domains,
		FilterWords:  words,
		APIToken:     m.APIToken,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}, nil
}

func encodeStrings(values []string) (datatypes.JSON, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode string list: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func decodeStrings(raw datatypes.JSON) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}
	return values, nil
}

func mergeStrings(current, extra []string) []string {
	seen := make(map[string]struct{}, len(current)+len(extra))
	merged := make([]string, 0, len(current)+len(extra))
	for _, v := range current {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		merged = append(merged, v)
	}
	for _, v := range extra {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		merged = append(merged, v)
	}
	return merged
}
