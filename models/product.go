package models

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/inayat82/pos-backoffice/config"
	"github.com/inayat82/pos-backoffice/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Product is a tenant-owned catalog entry. StockQty is only ever
// decremented through the guarded update in CreateSale, which keeps the
// stock_qty >= 0 invariant at the database layer.
type Product struct {
	ID        int             `gorm:"primary_key" json:"id"`
	AdminId   string          `gorm:"index;size:64;not null" json:"admin_id" binding:"required"`
	Name      string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Sku       string          `gorm:"size:100;not null;index" json:"sku" binding:"required"`
	Barcode   string          `gorm:"index;size:100" json:"barcode"`
	SellPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sell_price"`
	StockQty  int             `gorm:"not null;default:0" json:"stock_qty"`
	IsActive  *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name      string          `json:"name" binding:"required"`
	Sku       string          `json:"sku" binding:"required"`
	Barcode   string          `json:"barcode"`
	SellPrice decimal.Decimal `json:"sell_price"`
	StockQty  int             `json:"stock_qty"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewProduct) validate(ctx context.Context, adminId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Product](ctx, adminId, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[Product](ctx, adminId, "sku", input.Sku, id); err != nil {
		return err
	}
	if input.SellPrice.IsNegative() {
		return errors.New("sell price cannot be negative")
	}
	if input.StockQty < 0 {
		return errors.New("stock qty cannot be negative")
	}
	return nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	adminId, ok := utils.GetAdminIdFromContext(ctx)
	if !ok || adminId == "" {
		return nil, errors.New("admin id is required")
	}

	if err := input.validate(ctx, adminId, 0); err != nil {
		return nil, err
	}

	product := Product{
		AdminId:   adminId,
		Name:      input.Name,
		Sku:       input.Sku,
		Barcode:   input.Barcode,
		SellPrice: input.SellPrice,
		StockQty:  input.StockQty,
	}

	db := config.GetDB()
	// db action
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func UpdateProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {
	adminId, ok := utils.GetAdminIdFromContext(ctx)
	if !ok || adminId == "" {
		return nil, errors.New("admin id is required")
	}

	if err := input.validate(ctx, adminId, id); err != nil {
		return nil, err
	}

	product, err := utils.FetchModel[Product](ctx, adminId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	// db action
	if err := db.WithContext(ctx).Model(&product).
		Updates(map[string]interface{}{
			"Name":      input.Name,
			"Sku":       input.Sku,
			"Barcode":   input.Barcode,
			"SellPrice": input.SellPrice,
			"StockQty":  input.StockQty,
		}).Error; err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisItem[Product](id); err != nil {
		return nil, err
	}

	return product, nil
}

func DeleteProduct(ctx context.Context, id int) (*Product, error) {
	adminId, ok := utils.GetAdminIdFromContext(ctx)
	if !ok || adminId == "" {
		return nil, errors.New("admin id is required")
	}

	product, err := utils.FetchModel[Product](ctx, adminId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	// Do not delete products referenced by committed sales.
	var count int64
	if err := db.WithContext(ctx).Model(&SaleItem{}).
		Where("product_id = ?", product.ID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("used by sale")
	}

	// db action
	if err := db.WithContext(ctx).Delete(&product).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Product](id); err != nil {
		return nil, err
	}
	return product, nil
}

// first find in redis, then in db, cache result
func GetProduct(ctx context.Context, id int) (*Product, error) {
	adminId, ok := utils.GetAdminIdFromContext(ctx)
	if !ok || adminId == "" {
		return nil, errors.New("admin id is required")
	}

	result, err := utils.RetrieveRedis[Product](id)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result, err = utils.FetchModel[Product](ctx, adminId, id)
		if err != nil {
			return nil, err
		}
		if err := utils.StoreRedis[Product](result, id); err != nil {
			return nil, err
		}
	} else if result.AdminId != adminId {
		// cached copy may belong to another tenant
		return nil, errors.New("cannot access resource owned by other admin")
	}

	return result, nil
}

// ListProducts searches by name, sku or barcode within the tenant.
func ListProducts(ctx context.Context, keyword *string) ([]*Product, error) {
	adminId, ok := utils.GetAdminIdFromContext(ctx)
	if !ok || adminId == "" {
		return nil, errors.New("admin id is required")
	}

	db := config.GetDB()
	var results []*Product

	dbCtx := db.WithContext(ctx).Where("admin_id = ?", adminId)
	if keyword != nil && len(*keyword) > 0 {
		like := "%" + *keyword + "%"
		dbCtx = dbCtx.Where("name LIKE ? OR sku LIKE ? OR barcode LIKE ?", like, like, like)
	}
	// db query
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ExportProducts renders the tenant's catalog as an xlsx workbook.
func ExportProducts(ctx context.Context) (*bytes.Buffer, error) {
	products, err := ListProducts(ctx, nil)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Products"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headers := []string{"ID", "Name", "SKU", "Barcode", "Sell Price", "Stock Qty"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	for row, p := range products {
		values := []interface{}{p.ID, p.Name, p.Sku, p.Barcode, p.SellPrice.String(), p.StockQty}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	return f.WriteToBuffer()
}
