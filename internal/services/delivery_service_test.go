package services

import (
	"testing"

	"github.com/kiranakart/api/internal/platform/config"
)

// configuredBands converts the config defaults into resolver bands, the same
// mapping the container performs when wiring the delivery service.
func configuredBands(bands []config.PostalBandConfig) []PostalBand {
	out := make([]PostalBand, 0, len(bands))
	for _, band := range bands {
		out = append(out, PostalBand{From: band.From, To: band.To})
	}
	return out
}

func newDefaultDelivery(t *testing.T) *DeliveryService {
	t.Helper()
	svc, err := NewDeliveryService(DeliveryServiceDeps{
		ServiceableBands: configuredBands(config.DefaultServiceableBands()),
		SurchargeBands:   configuredBands(config.DefaultSurchargeBands()),
		SurchargeAmount:  9100,
	})
	if err != nil {
		t.Fatalf("NewDeliveryService: %v", err)
	}
	return svc
}

func TestDeliveryServiceResolveSurcharge(t *testing.T) {
	svc := newDefaultDelivery(t)

	cases := []struct {
		name      string
		code      string
		allowed   bool
		surcharge int64
	}{
		{name: "tamil nadu band no surcharge", code: "605001", allowed: true, surcharge: 0},
		{name: "surcharged karnataka band", code: "571401", allowed: true, surcharge: 9100},
		{name: "andhra band lower bound", code: "510000", allowed: true, surcharge: 9100},
		{name: "kerala band", code: "682001", allowed: true, surcharge: 9100},
		{name: "band upper bound inclusive", code: "699999", allowed: true, surcharge: 9100},
		{name: "just past serviceable band", code: "700000", allowed: false},
		{name: "gap between bands", code: "545000", allowed: false},
		{name: "mumbai out of coverage", code: "400001", allowed: false},
		{name: "non numeric", code: "ABC123", allowed: false},
		{name: "empty", code: "", allowed: false},
		{name: "whitespace trimmed", code: " 560001 ", allowed: true, surcharge: 9100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			quote := svc.ResolveSurcharge(tc.code)
			if quote.Allowed != tc.allowed {
				t.Fatalf("code %q: expected allowed=%v got %v", tc.code, tc.allowed, quote.Allowed)
			}
			if quote.Surcharge != tc.surcharge {
				t.Fatalf("code %q: expected surcharge %d got %d", tc.code, tc.surcharge, quote.Surcharge)
			}
		})
	}
}

func TestDeliveryServiceNeverErrorsOnMalformedCode(t *testing.T) {
	svc := newDefaultDelivery(t)
	for _, code := range []string{"56000a", "-560001", "99999999999999999999", "56 0001"} {
		quote := svc.ResolveSurcharge(code)
		if quote.Allowed {
			t.Fatalf("expected %q to be rejected", code)
		}
		if quote.Surcharge != 0 {
			t.Fatalf("expected zero surcharge for %q got %d", code, quote.Surcharge)
		}
	}
}

func TestNewDeliveryServiceValidatesConfig(t *testing.T) {
	if _, err := NewDeliveryService(DeliveryServiceDeps{}); err == nil {
		t.Fatal("expected error for missing serviceable bands")
	}

	if _, err := NewDeliveryService(DeliveryServiceDeps{
		ServiceableBands: []PostalBand{{From: 600000, To: 500000}},
	}); err == nil {
		t.Fatal("expected error for inverted band")
	}

	// Surcharge bands must sit inside serviceable coverage.
	if _, err := NewDeliveryService(DeliveryServiceDeps{
		ServiceableBands: []PostalBand{{From: 560000, To: 569999}},
		SurchargeBands:   []PostalBand{{From: 700000, To: 709999}},
	}); err == nil {
		t.Fatal("expected error for surcharge band outside serviceable bands")
	}

	if _, err := NewDeliveryService(DeliveryServiceDeps{
		ServiceableBands: []PostalBand{{From: 560000, To: 569999}},
		SurchargeAmount:  -1,
	}); err == nil {
		t.Fatal("expected error for negative surcharge")
	}
}
