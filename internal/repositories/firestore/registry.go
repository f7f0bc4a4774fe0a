package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/kiranakart/api/internal/platform/firestore"
	"github.com/kiranakart/api/internal/repositories"
)

// Registry wires the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	carts       *CartRepository
	orders      *OrderRepository
	coupons     *CouponRepository
	couponUsage *CouponUsageRepository
	catalog     *CatalogRepository
	users       *UserRepository
	counters    *CounterRepository
	health      repositories.HealthRepository
}

// NewRegistry constructs all Firestore repositories over a shared provider.
// The health repository is injected because its probe set depends on which
// other backends the process talks to.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}
	if health == nil {
		return nil, errors.New("registry: health repository is required")
	}

	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	coupons, err := NewCouponRepository(provider)
	if err != nil {
		return nil, err
	}
	couponUsage, err := NewCouponUsageRepository(provider)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:    provider,
		carts:       carts,
		orders:      orders,
		coupons:     coupons,
		couponUsage: couponUsage,
		catalog:     catalog,
		users:       users,
		counters:    counters,
		health:      health,
	}, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx executes fn inside a Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry: firestore provider is required")
	}
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

func (r *Registry) Carts() repositories.CartRepository               { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository             { return r.orders }
func (r *Registry) Coupons() repositories.CouponRepository           { return r.coupons }
func (r *Registry) CouponUsage() repositories.CouponUsageRepository  { return r.couponUsage }
func (r *Registry) Catalog() repositories.CatalogRepository          { return r.catalog }
func (r *Registry) Users() repositories.UserRepository               { return r.users }
func (r *Registry) Counters() repositories.CounterRepository         { return r.counters }
func (r *Registry) Health() repositories.HealthRepository            { return r.health }

var _ repositories.Registry = (*Registry)(nil)
