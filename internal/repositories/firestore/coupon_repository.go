package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/kiranakart/api/internal/domain"
	pfirestore "github.com/kiranakart/api/internal/platform/firestore"
	"github.com/kiranakart/api/internal/repositories"
)

const couponsCollection = "coupons"

// CouponRepository persists coupon definitions. Codes are stored uppercased
// and looked up via an equality query.
type CouponRepository struct {
	base *pfirestore.BaseRepository[couponDocument]
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[couponDocument](provider, couponsCollection, nil, nil)
	return &CouponRepository{base: base}, nil
}

// Insert stores a new coupon. The ID must be unique.
func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	couponID := strings.TrimSpace(coupon.ID)
	if couponID == "" {
		return errors.New("coupon repository: coupon id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, couponID)
	if err != nil {
		return err
	}
	doc := encodeCouponDocument(coupon)
	if _, err := docRef.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("coupons.insert", err)
	}
	return nil
}

// Update replaces the persisted coupon state with the provided snapshot.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	couponID := strings.TrimSpace(coupon.ID)
	if couponID == "" {
		return errors.New("coupon repository: coupon id is required")
	}
	doc := encodeCouponDocument(coupon)
	if _, err := r.base.Set(ctx, couponID, doc); err != nil {
		return err
	}
	return nil
}

// Delete removes the coupon document.
func (r *CouponRepository) Delete(ctx context.Context, couponID string) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return errors.New("coupon repository: coupon id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, couponID)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx); err != nil {
		return pfirestore.WrapError("coupons.delete", err)
	}
	return nil
}

// FindByCode locates a coupon by its normalised code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Coupon{}, errors.New("coupon repository: code is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", code).Limit(1)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	if len(docs) == 0 {
		return domain.Coupon{}, pfirestore.NotFoundError("coupons.find_by_code", errors.New("coupon not found"))
	}
	doc := docs[0]
	return decodeCouponDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// List returns coupons matching the filter, most recently created first.
func (r *CouponRepository) List(ctx context.Context, filter repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Coupon]{}, errors.New("coupon repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Coupon]{}, fmt.Errorf("coupon repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statuses := normalizeStatusFilter(filter.Status)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if len(statuses) == 1 {
			q = q.Where("status", "==", statuses[0])
		} else if len(statuses) > 1 {
			if len(statuses) > 10 {
				statuses = statuses[:10]
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Coupon]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Coupon, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeCouponDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}

	return domain.CursorPage[domain.Coupon]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func encodeCouponDocument(coupon domain.Coupon) couponDocument {
	return couponDocument{
		Code:         strings.ToUpper(strings.TrimSpace(coupon.Code)),
		Kind:         string(coupon.Kind),
		Amount:       coupon.Amount,
		MinSubtotal:  coupon.MinSubtotal,
		Status:       strings.ToLower(strings.TrimSpace(coupon.Status)),
		StartsAt:     coupon.StartsAt.UTC(),
		EndsAt:       coupon.EndsAt.UTC(),
		PerUserLimit: coupon.PerUserLimit,
		UsageLimit:   coupon.UsageLimit,
		CreatedAt:    coupon.CreatedAt.UTC(),
		UpdatedAt:    coupon.UpdatedAt.UTC(),
	}
}

func decodeCouponDocument(id string, doc couponDocument, createdAt, updatedAt time.Time) domain.Coupon {
	return domain.Coupon{
		ID:           id,
		Code:         doc.Code,
		Kind:         domain.CouponKind(doc.Kind),
		Amount:       doc.Amount,
		MinSubtotal:  doc.MinSubtotal,
		Status:       doc.Status,
		StartsAt:     doc.StartsAt,
		EndsAt:       doc.EndsAt,
		PerUserLimit: doc.PerUserLimit,
		UsageLimit:   doc.UsageLimit,
		CreatedAt:    chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:    chooseTime(doc.UpdatedAt, updatedAt),
	}
}

type couponDocument struct {
	Code         string    `firestore:"code"`
	Kind         string    `firestore:"kind"`
	Amount       int64     `firestore:"amount"`
	MinSubtotal  int64     `firestore:"minSubtotal"`
	Status       string    `firestore:"status"`
	StartsAt     time.Time `firestore:"startsAt"`
	EndsAt       time.Time `firestore:"endsAt"`
	PerUserLimit *int      `firestore:"perUserLimit,omitempty"`
	UsageLimit   *int      `firestore:"usageLimit,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)
