package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/kiranakart/api/internal/domain"
	pfirestore "github.com/kiranakart/api/internal/platform/firestore"
	"github.com/kiranakart/api/internal/repositories"
)

const couponUsageCollection = "couponUsage"

type couponUsageDocument struct {
	CouponID string    `firestore:"couponId"`
	UserID   string    `firestore:"userId"`
	Times    int       `firestore:"times"`
	LastUsed time.Time `firestore:"lastUsed"`
}

// CouponUsageRepository tracks per-user redemption counts. Increments run in
// a transaction so concurrent checkouts cannot under-count.
type CouponUsageRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[couponUsageDocument]
}

// NewCouponUsageRepository constructs a Firestore-backed coupon usage repository.
func NewCouponUsageRepository(provider *pfirestore.Provider) (*CouponUsageRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon usage repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[couponUsageDocument](provider, couponUsageCollection, nil, nil)
	return &CouponUsageRepository{provider: provider, base: base}, nil
}

// GetUsage returns the usage record for the coupon and user. A missing record
// decodes to zero usage.
func (r *CouponUsageRepository) GetUsage(ctx context.Context, couponID string, userID string) (domain.CouponUsage, error) {
	if r == nil || r.base == nil {
		return domain.CouponUsage{}, errors.New("coupon usage repository not initialised")
	}
	docID, err := couponUsageDocID(couponID, userID)
	if err != nil {
		return domain.CouponUsage{}, err
	}

	doc, err := r.base.Get(ctx, docID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.CouponUsage{UserID: strings.TrimSpace(userID)}, nil
		}
		return domain.CouponUsage{}, err
	}
	return domain.CouponUsage{
		UserID:   doc.Data.UserID,
		Times:    doc.Data.Times,
		LastUsed: doc.Data.LastUsed,
	}, nil
}

// TotalUsage sums redemption counts for the coupon across all users.
func (r *CouponUsageRepository) TotalUsage(ctx context.Context, couponID string) (int, error) {
	if r == nil || r.base == nil {
		return 0, errors.New("coupon usage repository not initialised")
	}
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return 0, errors.New("coupon usage repository: coupon id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("couponId", "==", couponID)
	})
	if err != nil {
		return 0, err
	}
	total := 0
	for _, doc := range docs {
		total += doc.Data.Times
	}
	return total, nil
}

// IncrementUsage bumps the redemption count for the coupon and user.
func (r *CouponUsageRepository) IncrementUsage(ctx context.Context, couponID string, userID string, now time.Time) (domain.CouponUsage, error) {
	if r == nil || r.provider == nil {
		return domain.CouponUsage{}, errors.New("coupon usage repository not initialised")
	}
	docID, err := couponUsageDocID(couponID, userID)
	if err != nil {
		return domain.CouponUsage{}, err
	}

	now = now.UTC()
	var result domain.CouponUsage

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, docID)
		if err != nil {
			return err
		}

		doc := couponUsageDocument{
			CouponID: strings.TrimSpace(couponID),
			UserID:   strings.TrimSpace(userID),
		}
		snapshot, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			// first redemption
		case codes.OK:
			if err := snapshot.DataTo(&doc); err != nil {
				return fmt.Errorf("firestore coupon usage decode %s: %w", docID, err)
			}
		default:
			return err
		}

		doc.Times++
		doc.LastUsed = now
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		result = domain.CouponUsage{
			UserID:   doc.UserID,
			Times:    doc.Times,
			LastUsed: doc.LastUsed,
		}
		return nil
	})
	if err != nil {
		return domain.CouponUsage{}, pfirestore.WrapError("coupon_usage.increment", err)
	}
	return result, nil
}

func couponUsageDocID(couponID string, userID string) (string, error) {
	couponID = strings.TrimSpace(couponID)
	userID = strings.TrimSpace(userID)
	if couponID == "" || userID == "" {
		return "", errors.New("coupon usage repository: coupon id and user id are required")
	}
	return couponID + "__" + userID, nil
}

var _ repositories.CouponUsageRepository = (*CouponUsageRepository)(nil)
