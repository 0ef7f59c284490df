// Package catalog supplies per-SKU pricing for the reservation core.
// spec.md treats pricing as an external concern (the Confirm operation
// only needs a price_per_unit to compute total_amount); this package is
// the in-memory stand-in for that pricing service, grounded on the
// teacher's pattern of a small static in-memory table (internal/utils's
// item generator) rather than a full product-catalog service.
package catalog

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// DefaultPrice seeds a SKU's price when EnsureSKU finds none configured.
// It keeps a SKU that was only ever initialized through the inventory
// endpoint (which carries no price) priceable at confirm time, rather
// than leaving a catalog miss to surface after the reservation has
// already been fetch-deleted.
var DefaultPrice = decimal.NewFromFloat(19.99)

// Catalog is a SKU -> price lookup, safe for concurrent reads and the
// occasional EnsureSKU write from the inventory-initialize path.
type Catalog struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// New builds a Catalog from a SKU -> price map, e.g. loaded from config
// or a fixture at startup.
func New(prices map[string]decimal.Decimal) *Catalog {
	c := &Catalog{prices: make(map[string]decimal.Decimal, len(prices))}
	for sku, price := range prices {
		c.prices[sku] = price
	}
	return c
}

// PricePerUnit returns sku's unit price. An unknown SKU is a caller bug
// (the engine already verified the SKU is initialized before pricing
// runs), so it returns an error rather than a zero price.
func (c *Catalog) PricePerUnit(sku string) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.prices[sku]
	if !ok {
		return decimal.Zero, fmt.Errorf("catalog: no price configured for sku %q", sku)
	}
	return price, nil
}

// EnsureSKU seeds sku with DefaultPrice if the catalog has no price for
// it yet. It never overwrites an existing price, so a real price loaded
// at startup always wins over the fallback.
func (c *Catalog) EnsureSKU(sku string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.prices[sku]; ok {
		return
	}
	c.prices[sku] = DefaultPrice
}

// Total computes quantity * PricePerUnit(sku).
func (c *Catalog) Total(sku string, quantity int64) (decimal.Decimal, error) {
	price, err := c.PricePerUnit(sku)
	if err != nil {
		return decimal.Zero, err
	}
	return price.Mul(decimal.NewFromInt(quantity)), nil
}

// DefaultFixture returns a small built-in price table so the service has
// sane defaults without an external pricing feed. cmd/server uses this
// table as is; no config option sets or overrides prices.
func DefaultFixture() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"SKU-DEFAULT": decimal.NewFromFloat(19.99),
	}
}
