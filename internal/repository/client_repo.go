package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rifas/internal/model"

	"gorm.io/gorm"
)

type ClientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// Create 并发下单同时为同一手机号建档时，后提交的一方返回可重试的 ErrBusy，
// 重试时会按手机号查到已创建的客户
func (r *ClientRepository) Create(ctx context.Context, tx *gorm.DB, client *model.Client) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(client).Error
	if isDuplicateKey(err) {
		return fmt.Errorf("%w: client %s created concurrently: %w", model.ErrBusy, client.Phone, err)
	}
	return err
}

// FindByPhone 未找到时返回 nil, nil
func (r *ClientRepository) FindByPhone(ctx context.Context, tx *gorm.DB, phone string) (*model.Client, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, nil
	}
	return r.findOne(ctx, tx, "phone = ?", phone)
}

// FindByNationalID 未找到时返回 nil, nil
func (r *ClientRepository) FindByNationalID(ctx context.Context, tx *gorm.DB, nationalID string) (*model.Client, error) {
	nationalID = strings.TrimSpace(nationalID)
	if nationalID == "" {
		return nil, nil
	}
	return r.findOne(ctx, tx, "national_id = ?", nationalID)
}

func (r *ClientRepository) findOne(ctx context.Context, tx *gorm.DB, query string, arg interface{}) (*model.Client, error) {
	if tx == nil {
		tx = r.db
	}
	var client model.Client
	err := tx.WithContext(ctx).Where(query, arg).First(&client).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &client, nil
}
