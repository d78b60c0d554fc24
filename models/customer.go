package models

import (
	"context"
	"errors"
	"time"

	"github.com/inayat82/pos-backoffice/config"
	"github.com/inayat82/pos-backoffice/utils"
)

type Customer struct {
	ID        int       `gorm:"primary_key" json:"id"`
	AdminId   string    `gorm:"index;size:64;not null" json:"admin_id" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:100" json:"email"`
	Phone     string    `gorm:"size:20" json:"phone"`
	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewCustomer) validate(ctx context.Context, adminId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Customer](ctx, adminId, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[Customer](ctx, adminId, "name", input.Name, id); err != nil {
		return err
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return errors.New("invalid email")
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return errors.New("invalid phone number")
		}
	}
	return nil
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	adminId, ok := utils.GetAdminIdFromContext(ctx)
	if !ok || adminId == "" {
		return nil, errors.New("admin id is required")
	}

	if err := input.validate(ctx, adminId, 0); err != nil {
		return nil, err
	}

	customer := Customer{
		AdminId: adminId,
		Name:    input.Name,
		Email:   input.Email,
		Phone:   input.Phone,
		Notes:   input.Notes,
	}

	db := config.GetDB()
	// db action
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func UpdateCustomer(ctx context.Context, id int, input *NewCustomer) (*Customer, error) {
	adminId, ok := utils.GetAdminIdFromContext(ctx)
	if !ok || adminId == "" {
		return nil, errors.New("admin id is required")
	}

	if err := input.validate(ctx, adminId, id); err != nil {
		return nil, err
	}

	customer, err := utils.FetchModel[Customer](ctx, adminId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	// db action
	if err := db.WithContext(ctx).Model(&customer).
		Updates(map[string]interface{}{
			"Name":  input.Name,
			"Email": input.Email,
			"Phone": input.Phone,
			"Notes": input.Notes,
		}).Error; err != nil {
		return nil, err
	}

	return customer, nil
}

func DeleteCustomer(ctx context.Context, id int) (*Customer, error) {
	adminId, ok := utils.GetAdminIdFromContext(ctx)
	if !ok || adminId == "" {
		return nil, errors.New("admin id is required")
	}

	customer, err := utils.FetchModel[Customer](ctx, adminId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	// Do not delete if referenced by sales.
	var count int64
	if err := db.WithContext(ctx).Model(&Sale{}).
		Where("customer_id = ?", customer.ID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("used by sale")
	}

	// db action
	if err := db.WithContext(ctx).Delete(&customer).Error; err != nil {
		return nil, err
	}
	return customer, nil
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	adminId, ok := utils.GetAdminIdFromContext(ctx)
	if !ok || adminId == "" {
		return nil, errors.New("admin id is required")
	}
	return utils.FetchModel[Customer](ctx, adminId, id)
}

func ListCustomers(ctx context.Context, name *string) ([]*Customer, error) {
	adminId, ok := utils.GetAdminIdFromContext(ctx)
	if !ok || adminId == "" {
		return nil, errors.New("admin id is required")
	}

	db := config.GetDB()
	var results []*Customer

	dbCtx := db.WithContext(ctx).Where("admin_id = ?", adminId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	// db query
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
