package services

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/kiranakart/api/internal/domain"
	"github.com/kiranakart/api/internal/repositories"
)

const couponIDPrefix = "cpn_"

// Rejection reasons surfaced in CouponValidationResult. They are wire-stable
// strings the storefront renders inline.
const (
	CouponReasonNotFound    = "not_found"
	CouponReasonInactive    = "inactive"
	CouponReasonNotStarted  = "not_started"
	CouponReasonExpired     = "expired"
	CouponReasonMinSubtotal = "min_subtotal_not_met"
	CouponReasonLimitUser   = "per_user_limit_reached"
	CouponReasonLimitGlobal = "usage_limit_reached"
)

// CouponServiceDeps bundles dependencies required to construct a CouponService implementation.
type CouponServiceDeps struct {
	Coupons repositories.CouponRepository
	Usage   repositories.CouponUsageRepository
	Clock   func() time.Time
	IDGen   func() string
}

type couponService struct {
	coupons repositories.CouponRepository
	usage   repositories.CouponUsageRepository
	clock   func() time.Time
	idGen   func() string
}

// NewCouponService wires a CouponService backed by the provided repositories.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, ErrCouponRepositoryMissing
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return couponIDPrefix + ulid.Make().String() }
	}
	return &couponService{
		coupons: deps.Coupons,
		usage:   deps.Usage,
		clock:   func() time.Time { return clock().UTC() },
		idGen:   idGen,
	}, nil
}

// Validate evaluates a coupon code against the supplied subtotal and the
// caller's redemption history. Business rejections come back as an invalid
// result with a reason; only malformed input and infrastructure failures
// surface as errors.
func (s *couponService) Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponValidationResult, error) {
	if s == nil || s.coupons == nil {
		return CouponValidationResult{}, ErrCouponRepositoryMissing
	}

	code := normalizeCouponCode(cmd.Code)
	if code == "" {
		return CouponValidationResult{}, ErrCouponInvalidCode
	}
	if cmd.Subtotal < 0 {
		return CouponValidationResult{}, ErrCouponInvalidInput
	}

	result := CouponValidationResult{Code: code}

	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if repoErr, ok := err.(repositories.RepositoryError); ok && repoErr.IsNotFound() {
			result.Reason = CouponReasonNotFound
			return result, nil
		}
		return CouponValidationResult{}, err
	}

	now := s.clock()
	if normalizeCouponStatus(coupon.Status) != "active" {
		result.Reason = CouponReasonInactive
		return result, nil
	}
	if !coupon.StartsAt.IsZero() && now.Before(coupon.StartsAt) {
		result.Reason = CouponReasonNotStarted
		return result, nil
	}
	if !coupon.EndsAt.IsZero() && now.After(coupon.EndsAt) {
		result.Reason = CouponReasonExpired
		return result, nil
	}
	if coupon.MinSubtotal > 0 && cmd.Subtotal < coupon.MinSubtotal {
		result.Reason = CouponReasonMinSubtotal
		return result, nil
	}

	if s.usage != nil {
		if coupon.UsageLimit != nil {
			total, err := s.usage.TotalUsage(ctx, coupon.ID)
			if err != nil {
				return CouponValidationResult{}, err
			}
			if total >= *coupon.UsageLimit {
				result.Reason = CouponReasonLimitGlobal
				return result, nil
			}
		}
		if coupon.PerUserLimit != nil && strings.TrimSpace(cmd.UserID) != "" {
			usage, err := s.usage.GetUsage(ctx, coupon.ID, cmd.UserID)
			if err != nil {
				if repoErr, ok := err.(repositories.RepositoryError); !ok || !repoErr.IsNotFound() {
					return CouponValidationResult{}, err
				}
			}
			if usage.Times >= *coupon.PerUserLimit {
				result.Reason = CouponReasonLimitUser
				return result, nil
			}
		}
	}

	result.Valid = true
	result.DiscountAmount = couponDiscount(coupon, cmd.Subtotal)
	return result, nil
}

// RecordRedemption increments the caller's usage counter for the coupon.
// Called after an order carrying the coupon is successfully placed.
func (s *couponService) RecordRedemption(ctx context.Context, cmd RecordRedemptionCommand) error {
	if s == nil || s.coupons == nil {
		return ErrCouponRepositoryMissing
	}
	if s.usage == nil {
		return nil
	}
	code := normalizeCouponCode(cmd.Code)
	if code == "" {
		return ErrCouponInvalidCode
	}
	if strings.TrimSpace(cmd.UserID) == "" {
		return ErrCouponInvalidInput
	}

	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if repoErr, ok := err.(repositories.RepositoryError); ok && repoErr.IsNotFound() {
			return ErrCouponNotFound
		}
		return err
	}

	_, err = s.usage.IncrementUsage(ctx, coupon.ID, cmd.UserID, s.clock())
	return err
}

func (s *couponService) ListCoupons(ctx context.Context, filter CouponListFilter) (domain.CursorPage[Coupon], error) {
	if s == nil || s.coupons == nil {
		return domain.CursorPage[Coupon]{}, ErrCouponRepositoryMissing
	}
	return s.coupons.List(ctx, repositories.CouponListFilter{
		Status:     filter.Status,
		Pagination: filter.Pagination,
	})
}

func (s *couponService) CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	if s == nil || s.coupons == nil {
		return Coupon{}, ErrCouponRepositoryMissing
	}
	coupon, err := s.sanitizeCoupon(cmd.Coupon)
	if err != nil {
		return Coupon{}, err
	}

	if _, err := s.coupons.FindByCode(ctx, coupon.Code); err == nil {
		return Coupon{}, ErrCouponConflict
	} else if repoErr, ok := err.(repositories.RepositoryError); !ok || !repoErr.IsNotFound() {
		return Coupon{}, err
	}

	now := s.clock()
	coupon.ID = s.idGen()
	coupon.CreatedAt = now
	coupon.UpdatedAt = now
	if err := s.coupons.Insert(ctx, coupon); err != nil {
		if repoErr, ok := err.(repositories.RepositoryError); ok && repoErr.IsConflict() {
			return Coupon{}, ErrCouponConflict
		}
		return Coupon{}, err
	}
	return coupon, nil
}

func (s *couponService) UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	if s == nil || s.coupons == nil {
		return Coupon{}, ErrCouponRepositoryMissing
	}
	if strings.TrimSpace(cmd.Coupon.ID) == "" {
		return Coupon{}, ErrCouponInvalidInput
	}
	coupon, err := s.sanitizeCoupon(cmd.Coupon)
	if err != nil {
		return Coupon{}, err
	}
	coupon.UpdatedAt = s.clock()
	if err := s.coupons.Update(ctx, coupon); err != nil {
		if repoErr, ok := err.(repositories.RepositoryError); ok && repoErr.IsNotFound() {
			return Coupon{}, ErrCouponNotFound
		}
		return Coupon{}, err
	}
	return coupon, nil
}

func (s *couponService) DeleteCoupon(ctx context.Context, couponID string) error {
	if s == nil || s.coupons == nil {
		return ErrCouponRepositoryMissing
	}
	trimmed := strings.TrimSpace(couponID)
	if trimmed == "" {
		return ErrCouponInvalidInput
	}
	if err := s.coupons.Delete(ctx, trimmed); err != nil {
		if repoErr, ok := err.(repositories.RepositoryError); ok && repoErr.IsNotFound() {
			return ErrCouponNotFound
		}
		return err
	}
	return nil
}

func (s *couponService) sanitizeCoupon(in Coupon) (Coupon, error) {
	coupon := in
	coupon.Code = normalizeCouponCode(coupon.Code)
	if coupon.Code == "" {
		return Coupon{}, ErrCouponInvalidCode
	}
	switch coupon.Kind {
	case domain.CouponKindFlat:
		if coupon.Amount <= 0 {
			return Coupon{}, ErrCouponInvalidInput
		}
	case domain.CouponKindPercent:
		if coupon.Amount <= 0 || coupon.Amount > 100 {
			return Coupon{}, ErrCouponInvalidInput
		}
	default:
		return Coupon{}, ErrCouponInvalidInput
	}
	if coupon.MinSubtotal < 0 {
		return Coupon{}, ErrCouponInvalidInput
	}
	if coupon.PerUserLimit != nil && *coupon.PerUserLimit <= 0 {
		return Coupon{}, ErrCouponInvalidInput
	}
	if coupon.UsageLimit != nil && *coupon.UsageLimit <= 0 {
		return Coupon{}, ErrCouponInvalidInput
	}
	if !coupon.StartsAt.IsZero() && !coupon.EndsAt.IsZero() && coupon.EndsAt.Before(coupon.StartsAt) {
		return Coupon{}, ErrCouponInvalidInput
	}
	if strings.TrimSpace(coupon.Status) == "" {
		coupon.Status = "active"
	}
	coupon.Status = normalizeCouponStatus(coupon.Status)
	return coupon, nil
}

// couponDiscount derives the discount in paise, clamped to the subtotal so a
// coupon can never push the items total negative.
func couponDiscount(coupon domain.Coupon, subtotal int64) int64 {
	var discount int64
	switch coupon.Kind {
	case domain.CouponKindFlat:
		discount = coupon.Amount
	case domain.CouponKindPercent:
		discount = subtotal * coupon.Amount / 100
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

func normalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func normalizeCouponStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
