package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrProductOutOfStock = errors.New("product is out of stock")
	ErrQuantityExceedsStock = errors.New("quantity exceeds available stock")
	ErrCartLineNotFound = errors.New("cart line not found")
)

// CartLine is one product entry in an in-progress sale. It snapshots the
// price and the stock ceiling observed when the product was added; the
// committed sale freezes these values (see CreateSale).
type CartLine struct {
	ID              int             `json:"id"`
	ProductId       int             `json:"product_id"`
	ProductName     string          `json:"product_name"`
	ProductSku      string          `json:"product_sku"`
	SellPrice       decimal.Decimal `json:"sell_price"`
	Quantity        int             `json:"quantity"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CurrentStockQty int             `json:"current_stock_qty"`
}

type CartTotals struct {
	TotalItems    int             `json:"total_items"`
	TotalQuantity int             `json:"total_quantity"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// Cart holds in-memory sale lines. Never persisted as such; SaleItems
// turns it into the input CreateSale takes. Not safe for concurrent use.
type Cart struct {
	lines      []*CartLine
	nextLineId int
}

func NewCart() *Cart {
	return &Cart{nextLineId: 1}
}

// AddProduct appends a line with quantity 1, or bumps the quantity of an
// existing line for the same product. Rejects when the product has no
// stock, or when the bump would exceed the product's live stock; the
// cart is left unchanged on rejection.
func (c *Cart) AddProduct(product *Product) (*CartLine, error) {
	if product == nil {
		return nil, errors.New("product is nil")
	}
	if product.StockQty <= 0 {
		return nil, ErrProductOutOfStock
	}

	for _, line := range c.lines {
		if line.ProductId == product.ID {
			if line.Quantity+1 > product.StockQty {
				return nil, ErrQuantityExceedsStock
			}
			line.Quantity++
			line.CurrentStockQty = product.StockQty
			line.TotalAmount = line.SellPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
			return line, nil
		}
	}

	line := &CartLine{
		ID:              c.nextLineId,
		ProductId:       product.ID,
		ProductName:     product.Name,
		ProductSku:      product.Sku,
		SellPrice:       product.SellPrice,
		Quantity:        1,
		TotalAmount:     product.SellPrice,
		CurrentStockQty: product.StockQty,
	}
	c.nextLineId++
	c.lines = append(c.lines, line)
	return line, nil
}

// UpdateQuantity recomputes the line total. Rejects a quantity above the
// line's stock ceiling or below 1, leaving the line untouched.
func (c *Cart) UpdateQuantity(lineId int, quantity int) error {
	line := c.findLine(lineId)
	if line == nil {
		return ErrCartLineNotFound
	}
	if quantity < 1 {
		return fmt.Errorf("quantity must be at least 1")
	}
	if quantity > line.CurrentStockQty {
		return ErrQuantityExceedsStock
	}
	line.Quantity = quantity
	line.TotalAmount = line.SellPrice.Mul(decimal.NewFromInt(int64(quantity)))
	return nil
}

// UpdatePrice overrides the line's unit price and recomputes its total.
func (c *Cart) UpdatePrice(lineId int, price decimal.Decimal) error {
	line := c.findLine(lineId)
	if line == nil {
		return ErrCartLineNotFound
	}
	if price.IsNegative() {
		return fmt.Errorf("price cannot be negative")
	}
	line.SellPrice = price
	line.TotalAmount = price.Mul(decimal.NewFromInt(int64(line.Quantity)))
	return nil
}

// RemoveLine deletes the line unconditionally. Removing an unknown line
// is a no-op.
func (c *Cart) RemoveLine(lineId int) {
	for i, line := range c.lines {
		if line.ID == lineId {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}

// Totals is pure and derived; it never mutates the cart.
func (c *Cart) Totals() CartTotals {
	totals := CartTotals{TotalAmount: decimal.Zero}
	for _, line := range c.lines {
		totals.TotalItems++
		totals.TotalQuantity += line.Quantity
		totals.TotalAmount = totals.TotalAmount.Add(line.TotalAmount)
	}
	return totals
}

// Lines returns a copy of the line slice; mutating it does not affect
// the cart.
func (c *Cart) Lines() []CartLine {
	out := make([]CartLine, 0, len(c.lines))
	for _, line := range c.lines {
		out = append(out, *line)
	}
	return out
}

// SaleItems converts the cart lines into sale input items, carrying
// each line's adjusted price so the committed sale keeps any override.
func (c *Cart) SaleItems() []NewSaleItem {
	items := make([]NewSaleItem, 0, len(c.lines))
	for _, line := range c.lines {
		price := line.SellPrice
		items = append(items, NewSaleItem{
			ProductId: line.ProductId,
			Quantity:  line.Quantity,
			SellPrice: &price,
		})
	}
	return items
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Reset drops all lines (form reset after a committed sale).
func (c *Cart) Reset() {
	c.lines = nil
	c.nextLineId = 1
}

func (c *Cart) findLine(lineId int) *CartLine {
	for _, line := range c.lines {
		if line.ID == lineId {
			return line
		}
	}
	return nil
}
