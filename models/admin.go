package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/inayat82/pos-backoffice/config"
	"github.com/inayat82/pos-backoffice/utils"
)

// Admin is a tenant account. Every tenant-owned table carries its id
// in an admin_id column (see config.TenantGuardPlugin).
type Admin struct {
	ID        string    `gorm:"primary_key;size:64" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:100;not null;uniqueIndex" json:"email" binding:"required"`
	Password  string    `gorm:"size:100;not null" json:"-"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAdmin struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

type SigninInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthPayload struct {
	Token string `json:"token"`
	Admin *Admin `json:"admin"`
}

func CreateAdmin(ctx context.Context, input *NewAdmin) (*Admin, error) {
	db := config.GetDB()

	if !utils.IsValidEmail(input.Email) {
		return nil, errors.New("invalid email")
	}

	var count int64
	if err := db.WithContext(ctx).Model(&Admin{}).Where("email = ?", input.Email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("duplicate email")
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	admin := Admin{
		ID:       uuid.NewString(),
		Name:     input.Name,
		Email:    input.Email,
		Password: string(hashed),
	}
	if err := db.WithContext(ctx).Create(&admin).Error; err != nil {
		return nil, err
	}
	return &admin, nil
}

// Signin verifies credentials, issues a JWT and records the token as a
// redis session so it can be revoked server-side.
func Signin(ctx context.Context, input *SigninInput) (*AuthPayload, error) {
	db := config.GetDB()

	var admin Admin
	err := db.WithContext(ctx).Where("email = ?", input.Email).First(&admin).Error
	if err != nil {
		return nil, errors.New("invalid email or password")
	}
	if admin.IsActive != nil && !*admin.IsActive {
		return nil, errors.New("account disabled")
	}

	if err := utils.ComparePassword(admin.Password, input.Password); err != nil {
		return nil, errors.New("invalid email or password")
	}

	token, err := utils.JwtGenerate(admin.ID, admin.Email)
	if err != nil {
		return nil, err
	}

	if err := config.SetRedisValue("Token:"+token, admin.ID, utils.GetCacheLifespan()); err != nil {
		config.LogError(config.GetLogger(), "admin.go", "Signin", "store session token", admin.ID, err)
	}

	return &AuthPayload{Token: token, Admin: &admin}, nil
}

// Signout revokes the redis session recorded at signin.
func Signout(ctx context.Context) error {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return errors.New("no session token")
	}
	return config.RemoveRedisKey("Token:" + token)
}
