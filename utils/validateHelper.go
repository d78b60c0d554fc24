package utils

import (
	"context"
	"errors"
	"reflect"

	"github.com/inayat82/pos-backoffice/config"
)

// check if id exists, using admin_id in WHERE, return RecordNotFound error
func ValidateResourceId[T any](ctx context.Context, adminId string, id interface{}) error {
	count, err := ResourceCountWhere[T](ctx, adminId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

func ValidateUnique[T any](ctx context.Context, adminId string, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](ctx, adminId, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](ctx, adminId, column+" = ? AND NOT id = ?", value, exceptId)
	}

	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("duplicate " + column)
	}
	return nil
}

// count records, using WHERE admin_id = ? AND $condition
// admin_id can be blank for internal ops
func ResourceCountWhere[T any](ctx context.Context, adminId string, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	if adminId != "" {
		dbCtx.Where("admin_id = ?", adminId)
	}
	dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// fetch model by id, using admin_id in WHERE
// (may return RecordNotFound error)
func FetchModel[T any](ctx context.Context, adminId string, id int, associations ...string) (*T, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("admin_id = ?", adminId)
	// preloading
	for _, field := range associations {
		dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}
