package services

import "errors"

var (
	// ErrCouponRepositoryMissing indicates the coupon repository dependency is absent.
	ErrCouponRepositoryMissing = errors.New("coupon service: repository is not configured")
	// ErrCouponInvalidCode signals the supplied coupon code is missing or malformed.
	ErrCouponInvalidCode = errors.New("coupon service: invalid coupon code")
	// ErrCouponNotFound indicates no coupon exists for the provided code.
	ErrCouponNotFound = errors.New("coupon service: coupon not found")
	// ErrCouponInvalidInput signals malformed admin input for coupon writes.
	ErrCouponInvalidInput = errors.New("coupon service: invalid input")
	// ErrCouponConflict indicates a coupon with the same code already exists.
	ErrCouponConflict = errors.New("coupon service: coupon already exists")
)
