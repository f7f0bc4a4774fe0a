package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PostalBand is a closed interval of numeric postal codes.
type PostalBand struct {
	From int64
	To   int64
}

// Contains reports whether the code falls inside the band.
func (b PostalBand) Contains(code int64) bool {
	return code >= b.From && code <= b.To
}

// DeliveryService resolves postal codes against serviceable and surcharge
// bands. Bands are configuration data; the resolver itself is pure.
type DeliveryService struct {
	serviceable []PostalBand
	surcharged  []PostalBand
	surcharge   int64
}

// DeliveryServiceDeps carries the band configuration for the resolver.
type DeliveryServiceDeps struct {
	ServiceableBands []PostalBand
	SurchargeBands   []PostalBand
	SurchargeAmount  int64
}

// NewDeliveryService validates the band configuration. Every surcharge band
// must sit inside a serviceable band; a surcharge for an unserviceable area
// is a configuration mistake.
func NewDeliveryService(deps DeliveryServiceDeps) (*DeliveryService, error) {
	if len(deps.ServiceableBands) == 0 {
		return nil, errors.New("delivery service: at least one serviceable band is required")
	}
	if deps.SurchargeAmount < 0 {
		return nil, errors.New("delivery service: surcharge amount must be non-negative")
	}
	for _, band := range deps.ServiceableBands {
		if band.From > band.To {
			return nil, fmt.Errorf("delivery service: invalid band [%d,%d]", band.From, band.To)
		}
	}
	for _, band := range deps.SurchargeBands {
		if band.From > band.To {
			return nil, fmt.Errorf("delivery service: invalid surcharge band [%d,%d]", band.From, band.To)
		}
		covered := false
		for _, outer := range deps.ServiceableBands {
			if band.From >= outer.From && band.To <= outer.To {
				covered = true
				break
			}
		}
		if !covered {
			return nil, fmt.Errorf("delivery service: surcharge band [%d,%d] is not inside a serviceable band", band.From, band.To)
		}
	}

	return &DeliveryService{
		serviceable: append([]PostalBand(nil), deps.ServiceableBands...),
		surcharged:  append([]PostalBand(nil), deps.SurchargeBands...),
		surcharge:   deps.SurchargeAmount,
	}, nil
}

// ResolveSurcharge validates the postal code and maps it to a delivery
// surcharge tier. A malformed or out-of-band code yields Allowed=false and a
// zero surcharge, never an error.
func (s *DeliveryService) ResolveSurcharge(postalCode string) SurchargeQuote {
	quote := SurchargeQuote{PostalCode: strings.TrimSpace(postalCode)}
	if s == nil {
		return quote
	}

	code, err := strconv.ParseInt(quote.PostalCode, 10, 64)
	if err != nil || code < 0 {
		return quote
	}

	allowed := false
	for _, band := range s.serviceable {
		if band.Contains(code) {
			allowed = true
			break
		}
	}
	if !allowed {
		return quote
	}

	quote.Allowed = true
	for _, band := range s.surcharged {
		if band.Contains(code) {
			quote.Surcharge = s.surcharge
			break
		}
	}
	return quote
}

var _ SurchargeResolver = (*DeliveryService)(nil)
