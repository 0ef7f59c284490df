package utils

import (
	"strings"
	"testing"
)

func TestGenerateReservationID_PrefixAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateReservationID()
		if !strings.HasPrefix(id, "rsv_") {
			t.Fatalf("id %q missing rsv_ prefix", id)
		}
		if seen[id] {
			t.Fatalf("duplicate reservation id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestGenerateOrderID_PrefixAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateOrderID()
		if !strings.HasPrefix(id, "ord_") {
			t.Fatalf("id %q missing ord_ prefix", id)
		}
		if seen[id] {
			t.Fatalf("duplicate order id generated: %s", id)
		}
		seen[id] = true
	}
}
