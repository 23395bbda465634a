package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mockloc/mockloc/internal/geo"
	"github.com/mockloc/mockloc/internal/model"
	"github.com/mockloc/mockloc/internal/model/convert"
	"github.com/mockloc/mockloc/pkg/core"
	"gorm.io/gorm"
)

// FavoriteStore implements Favorites on gorm.
type FavoriteStore struct {
	db *gorm.DB
}

// NewFavoriteStore creates a favorites store. The schema must be migrated.
func NewFavoriteStore(db *gorm.DB) *FavoriteStore {
	return &FavoriteStore{db: db}
}

func (s *FavoriteStore) Add(ctx context.Context, f core.Favorite) (core.Favorite, error) {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return core.Favorite{}, fmt.Errorf("favorite name is required")
	}
	if err := geo.Validate(f.Latitude, f.Longitude); err != nil {
		return core.Favorite{}, err
	}

	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&model.Favorite{}).Where("name = ?", f.Name).Count(&count).Error; err != nil {
		return core.Favorite{}, fmt.Errorf("failed to look up favorite: %w", err)
	}
	if count > 0 {
		return core.Favorite{}, fmt.Errorf("favorite %q: %w", f.Name, ErrDuplicate)
	}

	f.ID = 0
	gormObj, err := convert.CoreToFavorite(f)
	if err != nil {
		return core.Favorite{}, err
	}
	if err := db.Create(&gormObj).Error; err != nil {
		return core.Favorite{}, fmt.Errorf("failed to insert favorite: %w", err)
	}
	return convert.FavoriteToCore(gormObj), nil
}

func (s *FavoriteStore) Get(ctx context.Context, name string) (core.Favorite, error) {
	var gormObj model.Favorite
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&gormObj).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Favorite{}, fmt.Errorf("favorite %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return core.Favorite{}, fmt.Errorf("failed to get favorite: %w", err)
	}
	return convert.FavoriteToCore(gormObj), nil
}

// List returns favorites, most used first.
func (s *FavoriteStore) List(ctx context.Context) ([]core.Favorite, error) {
	var rows []model.Favorite
	if err := s.db.WithContext(ctx).Order("use_count DESC").Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	out := make([]core.Favorite, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.FavoriteToCore(r))
	}
	return out, nil
}

func (s *FavoriteStore) Remove(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Unscoped().Where("name = ?", name).Delete(&model.Favorite{})
	if res.Error != nil {
		return fmt.Errorf("failed to remove favorite: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("favorite %q: %w", name, ErrNotFound)
	}
	return nil
}

func (s *FavoriteStore) MarkUsed(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Model(&model.Favorite{}).
		Where("name = ?", name).
		Updates(map[string]any{
			"use_count": gorm.Expr("use_count + ?", 1),
			"last_used": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark favorite used: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("favorite %q: %w", name, ErrNotFound)
	}
	return nil
}

var _ Favorites = (*FavoriteStore)(nil)
