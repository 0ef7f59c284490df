package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCatalog_PricePerUnit(t *testing.T) {
	cat := New(map[string]decimal.Decimal{
		"SKU-A": decimal.NewFromFloat(9.99),
	})

	price, err := cat.PricePerUnit("SKU-A")
	if err != nil {
		t.Fatalf("PricePerUnit: %v", err)
	}
	if !price.Equal(decimal.NewFromFloat(9.99)) {
		t.Fatalf("price = %s, want 9.99", price)
	}
}

func TestCatalog_PricePerUnit_UnknownSKU(t *testing.T) {
	cat := New(map[string]decimal.Decimal{})

	if _, err := cat.PricePerUnit("SKU-MISSING"); err == nil {
		t.Fatalf("expected error for unknown sku")
	}
}

func TestCatalog_Total(t *testing.T) {
	cat := New(map[string]decimal.Decimal{
		"SKU-A": decimal.NewFromFloat(2.50),
	})

	total, err := cat.Total("SKU-A", 3)
	if err != nil {
		t.Fatalf("Total: %v", err)
	}
	if !total.Equal(decimal.NewFromFloat(7.50)) {
		t.Fatalf("total = %s, want 7.50", total)
	}
}

func TestDefaultFixture_HasDefaultSKU(t *testing.T) {
	fixture := DefaultFixture()
	if _, ok := fixture["SKU-DEFAULT"]; !ok {
		t.Fatalf("default fixture missing SKU-DEFAULT")
	}
}
