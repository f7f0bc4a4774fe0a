package firestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/kiranakart/api/internal/domain"
	pfirestore "github.com/kiranakart/api/internal/platform/firestore"
	"github.com/kiranakart/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order snapshots. Orders are immutable except for
// status fields and the payment record.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

// Insert stores a new order. The ID must be unique.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	doc := encodeOrderDocument(order)
	if _, err := docRef.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the persisted order state with the provided snapshot.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	doc := encodeOrderDocument(order)
	if _, err := r.base.Set(ctx, orderID, doc); err != nil {
		return err
	}
	return nil
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(orderID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// FindByIdempotencyKey locates the order created under the given key, used to
// replay checkout requests without creating duplicates.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, userID string, key string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	key = strings.TrimSpace(key)
	if userID == "" || key == "" {
		return domain.Order{}, errors.New("order repository: user id and idempotency key are required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("userId", "==", userID).
			Where("idempotencyKey", "==", key).
			Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NotFoundError("orders.find_by_idempotency_key", errors.New("order not found"))
	}
	doc := docs[0]
	return decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// List returns orders matching the filter ordered by most recent first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
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
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	userID := strings.TrimSpace(filter.UserID)
	statuses := normalizeStatusFilter(filter.Status)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if len(statuses) == 1 {
			q = q.Where("status", "==", statuses[0])
		} else if len(statuses) > 1 {
			// Firestore in clause supports up to 10 values.
			if len(statuses) > 10 {
				statuses = statuses[:10]
			}
			q = q.Where("status", "in", statuses)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
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
		return domain.CursorPage[domain.Order]{}, err
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

	items := make([]domain.Order, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func encodeOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:    strings.TrimSpace(order.OrderNumber),
		UserID:         strings.TrimSpace(order.UserID),
		Status:         string(order.Status),
		Currency:       strings.ToUpper(strings.TrimSpace(order.Currency)),
		Address:        encodeAddressDocument(order.ShippingAddress),
		PaymentMethod:  strings.TrimSpace(order.PaymentMethod),
		Totals:         encodeTotalsDocument(order.Totals),
		CouponCode:     strings.TrimSpace(order.CouponCode),
		IdempotencyKey: strings.TrimSpace(order.IdempotencyKey),
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
		PaidAt:         normalizeTimePointer(order.PaidAt),
		ShippedAt:      normalizeTimePointer(order.ShippedAt),
		DeliveredAt:    normalizeTimePointer(order.DeliveredAt),
	}
	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Brand:     item.Brand,
			Category:  item.Category,
			ImagePath: item.ImagePath,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}
	if order.Contact != nil {
		doc.Contact = &orderContactDocument{
			Name:  order.Contact.Name,
			Email: order.Contact.Email,
			Phone: order.Contact.Phone,
		}
	}
	if order.Payment != nil {
		doc.Payment = &orderPaymentDocument{
			Provider:     order.Payment.Provider,
			SessionID:    order.Payment.SessionID,
			ClientSecret: order.Payment.ClientSecret,
			GatewayRef:   order.Payment.GatewayRef,
			Status:       order.Payment.Status,
			Amount:       order.Payment.Amount,
			Currency:     order.Payment.Currency,
			ReconciledAt: normalizeTimePointer(order.Payment.ReconciledAt),
			Raw:          cloneAnyMap(order.Payment.Raw),
			CreatedAt:    order.Payment.CreatedAt.UTC(),
			UpdatedAt:    order.Payment.UpdatedAt.UTC(),
		}
	}
	return doc
}

func decodeOrderDocument(id string, doc orderDocument, createdAt, updatedAt time.Time) domain.Order {
	order := domain.Order{
		ID:              id,
		OrderNumber:     doc.OrderNumber,
		UserID:          doc.UserID,
		Status:          domain.OrderStatus(doc.Status),
		Currency:        strings.ToUpper(strings.TrimSpace(doc.Currency)),
		ShippingAddress: decodeAddressDocument(doc.Address),
		PaymentMethod:   doc.PaymentMethod,
		Totals:          decodeTotalsDocument(doc.Totals),
		CouponCode:      doc.CouponCode,
		IdempotencyKey:  doc.IdempotencyKey,
		CreatedAt:       chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:       chooseTime(doc.UpdatedAt, updatedAt),
		PaidAt:          doc.PaidAt,
		ShippedAt:       doc.ShippedAt,
		DeliveredAt:     doc.DeliveredAt,
	}
	order.Items = make([]domain.OrderLineItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderLineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Brand:     item.Brand,
			Category:  item.Category,
			ImagePath: item.ImagePath,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}
	if doc.Contact != nil {
		order.Contact = &domain.OrderContact{
			Name:  doc.Contact.Name,
			Email: doc.Contact.Email,
			Phone: doc.Contact.Phone,
		}
	}
	if doc.Payment != nil {
		order.Payment = &domain.OrderPayment{
			Provider:     doc.Payment.Provider,
			SessionID:    doc.Payment.SessionID,
			ClientSecret: doc.Payment.ClientSecret,
			GatewayRef:   doc.Payment.GatewayRef,
			Status:       doc.Payment.Status,
			Amount:       doc.Payment.Amount,
			Currency:     doc.Payment.Currency,
			ReconciledAt: doc.Payment.ReconciledAt,
			Raw:          cloneAnyMap(doc.Payment.Raw),
			CreatedAt:    doc.Payment.CreatedAt,
			UpdatedAt:    doc.Payment.UpdatedAt,
		}
	}
	return order
}

func encodeAddressDocument(address domain.Address) addressFieldsDocument {
	return addressFieldsDocument{
		Line1:      strings.TrimSpace(address.Line1),
		City:       strings.TrimSpace(address.City),
		PostalCode: strings.TrimSpace(address.PostalCode),
		Country:    strings.TrimSpace(address.Country),
		Phone:      strings.TrimSpace(address.Phone),
		Surcharge:  address.Surcharge,
	}
}

func decodeAddressDocument(doc addressFieldsDocument) domain.Address {
	return domain.Address{
		Line1:      doc.Line1,
		City:       doc.City,
		PostalCode: doc.PostalCode,
		Country:    doc.Country,
		Phone:      doc.Phone,
		Surcharge:  doc.Surcharge,
	}
}

func encodeTotalsDocument(totals domain.CartTotals) totalsDocument {
	return totalsDocument{
		ItemsPrice:     totals.ItemsPrice,
		ShippingPrice:  totals.ShippingPrice,
		TaxPrice:       totals.TaxPrice,
		CouponDiscount: totals.CouponDiscount,
		TotalPrice:     totals.TotalPrice,
	}
}

func decodeTotalsDocument(doc totalsDocument) domain.CartTotals {
	return domain.CartTotals{
		ItemsPrice:     doc.ItemsPrice,
		ShippingPrice:  doc.ShippingPrice,
		TaxPrice:       doc.TaxPrice,
		CouponDiscount: doc.CouponDiscount,
		TotalPrice:     doc.TotalPrice,
	}
}

func normalizeStatusFilter(statuses []string) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		trimmed := strings.ToLower(strings.TrimSpace(status))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func encodeListToken(createdAt time.Time, docID string) string {
	payload := fmt.Sprintf("%s|%s", createdAt.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeListToken(token string) (time.Time, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("invalid token structure")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, parts[1], nil
}

type orderDocument struct {
	OrderNumber    string                `firestore:"orderNumber"`
	UserID         string                `firestore:"userId"`
	Status         string                `firestore:"status"`
	Currency       string                `firestore:"currency"`
	Items          []orderItemDocument   `firestore:"items"`
	Address        addressFieldsDocument `firestore:"shippingAddress"`
	PaymentMethod  string                `firestore:"paymentMethod"`
	Totals         totalsDocument        `firestore:"totals"`
	CouponCode     string                `firestore:"couponCode,omitempty"`
	Contact        *orderContactDocument `firestore:"contact,omitempty"`
	IdempotencyKey string                `firestore:"idempotencyKey,omitempty"`
	Payment        *orderPaymentDocument `firestore:"payment,omitempty"`
	CreatedAt      time.Time             `firestore:"createdAt"`
	UpdatedAt      time.Time             `firestore:"updatedAt"`
	PaidAt         *time.Time            `firestore:"paidAt,omitempty"`
	ShippedAt      *time.Time            `firestore:"shippedAt,omitempty"`
	DeliveredAt    *time.Time            `firestore:"deliveredAt,omitempty"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Brand     string `firestore:"brand,omitempty"`
	Category  string `firestore:"category,omitempty"`
	ImagePath string `firestore:"imagePath,omitempty"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	Total     int64  `firestore:"total"`
}

type orderContactDocument struct {
	Name  string `firestore:"name,omitempty"`
	Email string `firestore:"email,omitempty"`
	Phone string `firestore:"phone,omitempty"`
}

type orderPaymentDocument struct {
	Provider     string         `firestore:"provider"`
	SessionID    string         `firestore:"sessionId"`
	ClientSecret string         `firestore:"clientSecret,omitempty"`
	GatewayRef   string         `firestore:"gatewayRef,omitempty"`
	Status       string         `firestore:"status"`
	Amount       int64          `firestore:"amount"`
	Currency     string         `firestore:"currency"`
	ReconciledAt *time.Time     `firestore:"reconciledAt,omitempty"`
	Raw          map[string]any `firestore:"raw,omitempty"`
	CreatedAt    time.Time      `firestore:"createdAt"`
	UpdatedAt    time.Time      `firestore:"updatedAt"`
}

type addressFieldsDocument struct {
	Line1      string `firestore:"line1"`
	City       string `firestore:"city"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone,omitempty"`
	Surcharge  int64  `firestore:"surcharge"`
}

type totalsDocument struct {
	ItemsPrice     int64 `firestore:"itemsPrice"`
	ShippingPrice  int64 `firestore:"shippingPrice"`
	TaxPrice       int64 `firestore:"taxPrice"`
	CouponDiscount int64 `firestore:"couponDiscount"`
	TotalPrice     int64 `firestore:"totalPrice"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
