package models

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inayat82/pos-backoffice/config"
	"github.com/inayat82/pos-backoffice/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Sale is written once by CreateSale and immutable thereafter. Items is
// a frozen point-in-time snapshot of the cart lines: downstream
// reporting and invoice printing depend on this exact shape staying
// decoupled from live Product state.
type Sale struct {
	ID            int             `gorm:"primary_key" json:"id"`
	AdminId       string          `gorm:"index;size:64;not null" json:"admin_id" binding:"required"`
	CustomerName  string          `gorm:"size:100;not null" json:"customer_name"`
	CustomerId    int             `gorm:"index;default:0" json:"customer_id"`
	InvoiceNumber string          `gorm:"size:100;not null;index" json:"invoice_number"`
	SequenceNo    int64           `gorm:"not null;default:0" json:"sequence_no"`
	PaymentMethod PaymentMethod   `gorm:"size:20;not null" json:"payment_method"`
	Items         []SaleItem      `gorm:"foreignKey:SaleId" json:"items"`
	TotalItems    int             `gorm:"not null;default:0" json:"total_items"`
	TotalQuantity int             `gorm:"not null;default:0" json:"total_quantity"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Notes         string          `gorm:"type:text" json:"notes"`
	SaleDate      time.Time       `gorm:"not null" json:"sale_date"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type SaleItem struct {
	ID          int             `gorm:"primary_key" json:"id"`
	SaleId      int             `gorm:"index;not null" json:"sale_id"`
	ProductId   int             `gorm:"index;not null" json:"product_id"`
	ProductName string          `gorm:"size:100;not null" json:"product_name"`
	ProductSku  string          `gorm:"size:100;not null" json:"product_sku"`
	SellPrice   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sell_price"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
}

type NewSale struct {
	CustomerName  string        `json:"customer_name"`
	CustomerId    int           `json:"customer_id"`
	PaymentMethod PaymentMethod `json:"payment_method" binding:"required"`
	Notes         string        `json:"notes"`
	SaleDate      *time.Time    `json:"sale_date"`
	Items         []NewSaleItem `json:"items" binding:"required"`
}

// NewSaleItem carries a committed cart line. SellPrice overrides the
// catalog price when set (the cart allows per-line price edits); the
// product name/sku snapshot always comes from the catalog at commit.
type NewSaleItem struct {
	ProductId int              `json:"product_id" binding:"required"`
	Quantity  int              `json:"quantity" binding:"required"`
	SellPrice *decimal.Decimal `json:"sell_price"`
}

type SalesEdge Edge[Sale]
type SalesConnection struct {
	Edges    []*SalesEdge `json:"edges"`
	PageInfo *PageInfo    `json:"pageInfo"`
}

// returns decoded cursor string
func (s Sale) GetCursor() string {
	return s.CreatedAt.Format("2006-01-02 15:04:05.000000")
}

func (input *NewSale) validate(ctx context.Context, adminId string) error {
	if len(input.Items) == 0 {
		return errors.New("sale has no items")
	}
	if !input.PaymentMethod.Valid() {
		return errors.New("invalid payment method")
	}
	if input.CustomerId == 0 && input.CustomerName == "" {
		return errors.New("customer is required")
	}
	// exists customer
	if input.CustomerId > 0 {
		if err := utils.ValidateResourceId[Customer](ctx, adminId, input.CustomerId); err != nil {
			return errors.New("customer not found")
		}
	}
	for _, item := range input.Items {
		if item.Quantity < 1 {
			return errors.New("item quantity must be at least 1")
		}
		if item.SellPrice != nil && item.SellPrice.IsNegative() {
			return errors.New("item price cannot be negative")
		}
		// exists product
		if err := utils.ValidateResourceId[Product](ctx, adminId, item.ProductId); err != nil {
			return fmt.Errorf("product %d not found", item.ProductId)
		}
	}
	return nil
}

// CreateSale commits a sale atomically: the invoice number claim, the
// sale insert with frozen item snapshots, and every stock decrement
// run in one DB transaction. Either everything commits or nothing
// does.
//
// Each decrement is guarded (stock_qty >= qty in the WHERE); a guard
// miss aborts the transaction, so concurrent sales of the same product
// cannot drive stock negative. The per-tenant redis lock on top only
// narrows lock-wait contention, correctness does not depend on it.
func CreateSale(ctx context.Context, input *NewSale) (*Sale, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	adminId, ok := utils.GetAdminIdFromContext(ctx)
	if !ok || adminId == "" {
		return nil, errors.New("admin id is required")
	}

	if err := input.validate(ctx, adminId); err != nil {
		return nil, err
	}

	release, err := utils.AdminLock(ctx, adminId, "saleLock", "sale.go", "CreateSale")
	if err != nil {
		return nil, err
	}
	defer release()

	saleDate := time.Now()
	if input.SaleDate != nil {
		saleDate = *input.SaleDate
	}

	customerName := input.CustomerName
	if input.CustomerId > 0 && customerName == "" {
		customer, err := utils.FetchModel[Customer](ctx, adminId, input.CustomerId)
		if err != nil {
			return nil, err
		}
		customerName = customer.Name
	}

	tx := db.Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	invoiceNumber, seqNo, err := NextInvoiceNumber(tx.WithContext(ctx), adminId, CounterTypeSale)
	if err != nil {
		if !config.AllowFallbackInvoiceNumbers() {
			tx.Rollback()
			return nil, err
		}
		// Availability over strict sequencing: degrade to a timestamp id.
		// The failed claim may have poisoned the transaction, so start a
		// fresh one for the sale itself.
		config.LogError(logger, "sale.go", "CreateSale", "counter claim failed, using fallback invoice number", adminId, err)
		tx.Rollback()
		tx = db.Begin()
		if tx.Error != nil {
			return nil, tx.Error
		}
		invoiceNumber = FallbackInvoiceNumber(CounterTypeSale, time.Now())
		seqNo = 0
	}

	var saleItems []SaleItem
	var totalQuantity int
	totalAmount := decimal.Zero

	for _, item := range input.Items {
		var product Product
		if err := tx.WithContext(ctx).
			Where("admin_id = ?", adminId).
			First(&product, item.ProductId).Error; err != nil {
			tx.Rollback()
			return nil, utils.ErrorRecordNotFound
		}

		price := product.SellPrice
		if item.SellPrice != nil {
			price = *item.SellPrice
		}
		lineTotal := price.Mul(decimal.NewFromInt(int64(item.Quantity)))

		saleItems = append(saleItems, SaleItem{
			ProductId:   product.ID,
			ProductName: product.Name,
			ProductSku:  product.Sku,
			SellPrice:   price,
			Quantity:    item.Quantity,
			TotalAmount: lineTotal,
		})
		totalQuantity += item.Quantity
		totalAmount = totalAmount.Add(lineTotal)
	}

	sale := Sale{
		AdminId:       adminId,
		CustomerName:  customerName,
		CustomerId:    input.CustomerId,
		InvoiceNumber: invoiceNumber,
		SequenceNo:    seqNo,
		PaymentMethod: input.PaymentMethod,
		Items:         saleItems,
		TotalItems:    len(saleItems),
		TotalQuantity: totalQuantity,
		TotalAmount:   totalAmount,
		Notes:         input.Notes,
		SaleDate:      saleDate,
	}

	if err := tx.WithContext(ctx).Create(&sale).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, item := range sale.Items {
		result := tx.WithContext(ctx).Model(&Product{}).
			Where("id = ? AND admin_id = ? AND stock_qty >= ?", item.ProductId, adminId, item.Quantity).
			UpdateColumns(map[string]interface{}{
				"stock_qty":  gorm.Expr("stock_qty - ?", item.Quantity),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			tx.Rollback()
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			tx.Rollback()
			return nil, fmt.Errorf("%w for %s", utils.ErrorInsufficientStock, item.ProductSku)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	// Decremented products are stale in cache now.
	for _, item := range sale.Items {
		if err := utils.RemoveRedisItem[Product](item.ProductId); err != nil {
			config.LogError(logger, "sale.go", "CreateSale", "evict product cache", item.ProductId, err)
		}
	}

	// Best effort after commit: a publish failure never fails the sale.
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	actor, _ := utils.GetUsernameFromContext(ctx)
	if _, err := config.PublishSaleEvent(ctx, config.SaleEventMessage{
		AdminId:       adminId,
		SaleId:        sale.ID,
		InvoiceNumber: sale.InvoiceNumber,
		TotalAmount:   sale.TotalAmount.String(),
		SaleDate:      sale.SaleDate,
		Action:        "create",
		Actor:         actor,
		CorrelationId: correlationId,
	}); err != nil {
		config.LogError(logger, "sale.go", "CreateSale", "publish sale event", sale.ID, err)
	}

	return &sale, nil
}

func GetSale(ctx context.Context, id int) (*Sale, error) {
	adminId, ok := utils.GetAdminIdFromContext(ctx)
	if !ok || adminId == "" {
		return nil, errors.New("admin id is required")
	}
	return utils.FetchModel[Sale](ctx, adminId, id, "Items")
}

// ListSales pages newest-first by created_at cursor.
func ListSales(ctx context.Context, limit int, after *string) (*SalesConnection, error) {
	adminId, ok := utils.GetAdminIdFromContext(ctx)
	if !ok || adminId == "" {
		return nil, errors.New("admin id is required")
	}
	if limit <= 0 {
		limit = config.SearchLimit
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Sale{}).
		Where("admin_id = ?", adminId).
		Preload("Items")

	edges, pageInfo, err := FetchPagePureCursor[Sale](dbCtx, limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}

	connection := SalesConnection{PageInfo: pageInfo}
	for i := range edges {
		edge := SalesEdge(edges[i])
		connection.Edges = append(connection.Edges, &edge)
	}
	return &connection, nil
}

// ExportSales renders the tenant's sales as an xlsx workbook, one row
// per sale item with the sale header repeated.
func ExportSales(ctx context.Context) (*bytes.Buffer, error) {
	adminId, ok := utils.GetAdminIdFromContext(ctx)
	if !ok || adminId == "" {
		return nil, errors.New("admin id is required")
	}

	db := config.GetDB()
	var sales []*Sale
	if err := db.WithContext(ctx).
		Where("admin_id = ?", adminId).
		Preload("Items").
		Order("created_at DESC").
		Find(&sales).Error; err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Sales"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headers := []string{"Invoice", "Date", "Customer", "Payment", "SKU", "Product", "Price", "Qty", "Line Total", "Sale Total"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	row := 2
	for _, sale := range sales {
		for _, item := range sale.Items {
			values := []interface{}{
				sale.InvoiceNumber,
				sale.SaleDate.Format("2006-01-02"),
				sale.CustomerName,
				string(sale.PaymentMethod),
				item.ProductSku,
				item.ProductName,
				item.SellPrice.String(),
				item.Quantity,
				item.TotalAmount.String(),
				sale.TotalAmount.String(),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				f.SetCellValue(sheet, cell, v)
			}
			row++
		}
	}

	return f.WriteToBuffer()
}
