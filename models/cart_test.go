package models_test

import (
	"errors"
	"testing"

	"github.com/inayat82/pos-backoffice/models"
	"github.com/shopspring/decimal"
)

func testProduct(id int, name, sku string, price string, stock int) *models.Product {
	p, err := decimal.NewFromString(price)
	if err != nil {
		panic(err)
	}
	return &models.Product{ID: id, Name: name, Sku: sku, SellPrice: p, StockQty: stock}
}

func TestCartAddProductMergesSameProduct(t *testing.T) {
	cart := models.NewCart()
	coffee := testProduct(1, "Coffee", "COF-001", "10.00", 5)

	first, err := cart.AddProduct(coffee)
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	second, err := cart.AddProduct(coffee)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same line, got ids %d and %d", first.ID, second.ID)
	}
	if second.Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", second.Quantity)
	}
	if second.TotalAmount.String() != "20" {
		t.Fatalf("expected line total 20, got %s", second.TotalAmount.String())
	}
	if got := len(cart.Lines()); got != 1 {
		t.Fatalf("expected 1 line, got %d", got)
	}
}

func TestCartAddProductRejectsOutOfStock(t *testing.T) {
	cart := models.NewCart()
	if _, err := cart.AddProduct(testProduct(1, "Coffee", "COF-001", "10.00", 0)); !errors.Is(err, models.ErrProductOutOfStock) {
		t.Fatalf("expected ErrProductOutOfStock, got %v", err)
	}
	if !cart.IsEmpty() {
		t.Fatalf("cart must stay empty after rejected add")
	}
}

func TestCartAddProductRejectsBeyondStock(t *testing.T) {
	cart := models.NewCart()
	tea := testProduct(2, "Tea", "TEA-001", "5.00", 1)

	if _, err := cart.AddProduct(tea); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := cart.AddProduct(tea); !errors.Is(err, models.ErrQuantityExceedsStock) {
		t.Fatalf("expected ErrQuantityExceedsStock, got %v", err)
	}
	lines := cart.Lines()
	if len(lines) != 1 || lines[0].Quantity != 1 {
		t.Fatalf("cart must be unchanged after rejected bump, got %+v", lines)
	}
}

func TestCartUpdateQuantityBounds(t *testing.T) {
	cart := models.NewCart()
	line, err := cart.AddProduct(testProduct(1, "Coffee", "COF-001", "10.00", 5))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := cart.UpdateQuantity(line.ID, 0); err == nil {
		t.Fatalf("expected error for quantity 0")
	}
	if err := cart.UpdateQuantity(line.ID, 6); !errors.Is(err, models.ErrQuantityExceedsStock) {
		t.Fatalf("expected ErrQuantityExceedsStock, got %v", err)
	}
	if got := cart.Lines()[0].Quantity; got != 1 {
		t.Fatalf("line must be untouched after rejected update, got quantity %d", got)
	}

	if err := cart.UpdateQuantity(line.ID, 5); err != nil {
		t.Fatalf("update to ceiling: %v", err)
	}
	updated := cart.Lines()[0]
	if updated.Quantity != 5 || updated.TotalAmount.String() != "50" {
		t.Fatalf("expected quantity 5 total 50, got %d / %s", updated.Quantity, updated.TotalAmount.String())
	}

	if err := cart.UpdateQuantity(999, 2); !errors.Is(err, models.ErrCartLineNotFound) {
		t.Fatalf("expected ErrCartLineNotFound, got %v", err)
	}
}

func TestCartUpdatePriceRecomputesTotal(t *testing.T) {
	cart := models.NewCart()
	line, err := cart.AddProduct(testProduct(1, "Coffee", "COF-001", "10.00", 5))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := cart.UpdateQuantity(line.ID, 3); err != nil {
		t.Fatalf("update quantity: %v", err)
	}

	if err := cart.UpdatePrice(line.ID, decimal.NewFromFloat(8.50)); err != nil {
		t.Fatalf("update price: %v", err)
	}
	if got := cart.Lines()[0].TotalAmount.String(); got != "25.5" {
		t.Fatalf("expected total 25.5, got %s", got)
	}

	if err := cart.UpdatePrice(line.ID, decimal.NewFromInt(-1)); err == nil {
		t.Fatalf("expected error for negative price")
	}
}

func TestCartTotalsTwoLines(t *testing.T) {
	cart := models.NewCart()
	coffee := testProduct(1, "Coffee", "COF-001", "10.00", 5)
	tea := testProduct(2, "Tea", "TEA-001", "5.00", 3)

	line, err := cart.AddProduct(coffee)
	if err != nil {
		t.Fatalf("add coffee: %v", err)
	}
	if err := cart.UpdateQuantity(line.ID, 2); err != nil {
		t.Fatalf("update coffee quantity: %v", err)
	}
	if _, err := cart.AddProduct(tea); err != nil {
		t.Fatalf("add tea: %v", err)
	}

	totals := cart.Totals()
	if totals.TotalItems != 2 {
		t.Fatalf("expected 2 items, got %d", totals.TotalItems)
	}
	if totals.TotalQuantity != 3 {
		t.Fatalf("expected quantity 3, got %d", totals.TotalQuantity)
	}
	if totals.TotalAmount.String() != "25" {
		t.Fatalf("expected amount 25, got %s", totals.TotalAmount.String())
	}
}

func TestCartRemoveAndReset(t *testing.T) {
	cart := models.NewCart()
	line, err := cart.AddProduct(testProduct(1, "Coffee", "COF-001", "10.00", 5))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// removing an unknown line is a no-op
	cart.RemoveLine(999)
	if len(cart.Lines()) != 1 {
		t.Fatalf("no-op remove must not change the cart")
	}

	cart.RemoveLine(line.ID)
	if !cart.IsEmpty() {
		t.Fatalf("cart must be empty after removing its only line")
	}

	if _, err := cart.AddProduct(testProduct(2, "Tea", "TEA-001", "5.00", 3)); err != nil {
		t.Fatalf("add after remove: %v", err)
	}
	cart.Reset()
	if !cart.IsEmpty() {
		t.Fatalf("cart must be empty after reset")
	}
	totals := cart.Totals()
	if totals.TotalItems != 0 || totals.TotalQuantity != 0 || !totals.TotalAmount.IsZero() {
		t.Fatalf("totals must be zero after reset, got %+v", totals)
	}
}

func TestCartSaleItemsCarriesLinePrices(t *testing.T) {
	cart := models.NewCart()
	coffee := testProduct(1, "Coffee", "COF-001", "10.00", 5)
	tea := testProduct(2, "Tea", "TEA-001", "5.00", 3)

	line, err := cart.AddProduct(coffee)
	if err != nil {
		t.Fatalf("add coffee: %v", err)
	}
	if _, err := cart.AddProduct(coffee); err != nil {
		t.Fatalf("add coffee again: %v", err)
	}
	if _, err := cart.AddProduct(tea); err != nil {
		t.Fatalf("add tea: %v", err)
	}
	if err := cart.UpdatePrice(line.ID, decimal.RequireFromString("9.50")); err != nil {
		t.Fatalf("update price: %v", err)
	}

	items := cart.SaleItems()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ProductId != 1 || items[0].Quantity != 2 {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[0].SellPrice == nil || items[0].SellPrice.String() != "9.5" {
		t.Fatalf("first item must carry the adjusted price, got %v", items[0].SellPrice)
	}
	if items[1].ProductId != 2 || items[1].Quantity != 1 {
		t.Fatalf("unexpected second item: %+v", items[1])
	}
	if items[1].SellPrice == nil || items[1].SellPrice.String() != "5" {
		t.Fatalf("second item must carry the line price, got %v", items[1].SellPrice)
	}
}
