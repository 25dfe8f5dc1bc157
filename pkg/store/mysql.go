package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"echoclicker/internal/models"
)

// MySQLStore keeps scripts in the scripts table. Deletes are hard deletes so
// a name can be reused.
type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(db *gorm.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) Save(ctx context.Context, name, text string) (models.Script, error) {
	if err := validateName(name); err != nil {
		return models.Script{}, err
	}

	var script models.Script
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("name = ?", name).First(&script).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			script = models.Script{Name: name, Text: text}
			return tx.Create(&script).Error
		case err != nil:
			return err
		}
		script.Text = text
		return tx.Save(&script).Error
	})
	return script, err
}

func (s *MySQLStore) Load(ctx context.Context, name string) (models.Script, error) {
	var script models.Script
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&script).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Script{}, notFound(name)
	}
	return script, err
}

func (s *MySQLStore) Delete(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Unscoped().Where("name = ?", name).Delete(&models.Script{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(name)
	}
	return nil
}

func (s *MySQLStore) List(ctx context.Context) ([]models.Script, error) {
	var list []models.Script
	err := s.db.WithContext(ctx).Order("name").Find(&list).Error
	return list, err
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
