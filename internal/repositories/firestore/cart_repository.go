package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/kiranakart/api/internal/domain"
	pfirestore "github.com/kiranakart/api/internal/platform/firestore"
	"github.com/kiranakart/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists the working cart for each user. The document is
// keyed by user ID so a user can never hold more than one cart.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{base: base}, nil
}

// UpsertCart replaces the persisted cart with the provided snapshot.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID := strings.TrimSpace(cart.UserID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc := encodeCartDocument(cart)
	result, err := r.base.Set(ctx, userID, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := cart
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// GetCart loads the cart for the given user.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	return decodeCartDocument(uid, doc.Data, doc.UpdateTime), nil
}

// DeleteCart removes the cart document. Deleting a missing cart is a no-op.
func (r *CartRepository) DeleteCart(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, uid)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx); err != nil {
		return pfirestore.WrapError("carts.delete", err)
	}
	return nil
}

func encodeCartDocument(cart domain.Cart) cartDocument {
	doc := cartDocument{
		CartID:        strings.TrimSpace(cart.ID),
		Currency:      strings.ToUpper(strings.TrimSpace(cart.Currency)),
		PaymentMethod: strings.TrimSpace(cart.PaymentMethod),
		Metadata:      cloneAnyMap(cart.Metadata),
		UpdatedAt:     cart.UpdatedAt.UTC(),
	}
	doc.Items = make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ProductID:  item.ProductID,
			Name:       item.Name,
			Brand:      item.Brand,
			Category:   item.Category,
			ImagePath:  item.ImagePath,
			UnitPrice:  item.UnitPrice,
			Currency:   item.Currency,
			Quantity:   item.Quantity,
			StockLimit: item.StockLimit,
			AddedAt:    item.AddedAt.UTC(),
			UpdatedAt:  normalizeTimePointer(item.UpdatedAt),
		})
	}
	if cart.ShippingAddress != nil {
		address := encodeAddressDocument(*cart.ShippingAddress)
		doc.ShippingAddress = &address
	}
	if cart.Coupon != nil {
		doc.Coupon = &cartCouponDocument{
			Code:           cart.Coupon.Code,
			DiscountAmount: cart.Coupon.DiscountAmount,
			Applied:        cart.Coupon.Applied,
		}
	}
	if cart.Totals != nil {
		totals := encodeTotalsDocument(*cart.Totals)
		doc.Totals = &totals
	}
	return doc
}

func decodeCartDocument(userID string, doc cartDocument, updatedAt time.Time) domain.Cart {
	cart := domain.Cart{
		ID:            doc.CartID,
		UserID:        userID,
		Currency:      strings.ToUpper(strings.TrimSpace(doc.Currency)),
		PaymentMethod: doc.PaymentMethod,
		Metadata:      cloneAnyMap(doc.Metadata),
		UpdatedAt:     chooseTime(doc.UpdatedAt, updatedAt),
	}
	cart.Items = make([]domain.CartItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID:  item.ProductID,
			Name:       item.Name,
			Brand:      item.Brand,
			Category:   item.Category,
			ImagePath:  item.ImagePath,
			UnitPrice:  item.UnitPrice,
			Currency:   item.Currency,
			Quantity:   item.Quantity,
			StockLimit: item.StockLimit,
			AddedAt:    item.AddedAt,
			UpdatedAt:  item.UpdatedAt,
		})
	}
	if doc.ShippingAddress != nil {
		address := decodeAddressDocument(*doc.ShippingAddress)
		cart.ShippingAddress = &address
	}
	if doc.Coupon != nil {
		cart.Coupon = &domain.CartCoupon{
			Code:           doc.Coupon.Code,
			DiscountAmount: doc.Coupon.DiscountAmount,
			Applied:        doc.Coupon.Applied,
		}
	}
	if doc.Totals != nil {
		totals := decodeTotalsDocument(*doc.Totals)
		cart.Totals = &totals
	}
	return cart
}

func cloneAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func chooseTime(primary time.Time, fallback time.Time) time.Time {
	if !primary.IsZero() {
		return primary
	}
	return fallback
}

func normalizeTimePointer(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}

type cartDocument struct {
	CartID          string                 `firestore:"cartId,omitempty"`
	Currency        string                 `firestore:"currency"`
	Items           []cartItemDocument     `firestore:"items"`
	ShippingAddress *addressFieldsDocument `firestore:"shippingAddress,omitempty"`
	PaymentMethod   string                 `firestore:"paymentMethod,omitempty"`
	Coupon          *cartCouponDocument    `firestore:"coupon,omitempty"`
	Totals          *totalsDocument        `firestore:"totals,omitempty"`
	Metadata        map[string]any         `firestore:"metadata,omitempty"`
	UpdatedAt       time.Time              `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID  string     `firestore:"productId"`
	Name       string     `firestore:"name"`
	Brand      string     `firestore:"brand,omitempty"`
	Category   string     `firestore:"category,omitempty"`
	ImagePath  string     `firestore:"imagePath,omitempty"`
	UnitPrice  int64      `firestore:"unitPrice"`
	Currency   string     `firestore:"currency"`
	Quantity   int        `firestore:"quantity"`
	StockLimit int        `firestore:"stockLimit"`
	AddedAt    time.Time  `firestore:"addedAt"`
	UpdatedAt  *time.Time `firestore:"updatedAt,omitempty"`
}

type cartCouponDocument struct {
	Code           string `firestore:"code"`
	DiscountAmount int64  `firestore:"discountAmount"`
	Applied        bool   `firestore:"applied"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
