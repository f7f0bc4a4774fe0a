package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/kiranakart/api/internal/payments"
	"github.com/kiranakart/api/internal/platform/config"
	"github.com/kiranakart/api/internal/repositories"
	"github.com/kiranakart/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Cart     services.CartService
	Checkout services.CheckoutService
	Orders   services.OrderService
	Coupons  services.CouponService
	Catalog  services.CatalogService
	Users    services.UserService
	Counters services.CounterService
	System   services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Payments     *payments.Manager
	Reconciler   *services.PaymentReconciler
}

// ContainerOption customises container assembly.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	logger      *zap.Logger
	clock       func() time.Time
	idGen       func() string
	build       services.BuildInfo
	orderEvents services.OrderEventPublisher
	payments    *payments.Manager
}

// WithLogger sets the logger used by all constructed services.
func WithLogger(logger *zap.Logger) ContainerOption {
	return func(c *containerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock injects a custom clock, primarily for tests.
func WithClock(clock func() time.Time) ContainerOption {
	return func(c *containerConfig) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithIDGenerator overrides the identifier generator shared by the services.
func WithIDGenerator(gen func() string) ContainerOption {
	return func(c *containerConfig) {
		if gen != nil {
			c.idGen = gen
		}
	}
}

// WithBuildInfo records build metadata surfaced by health endpoints.
func WithBuildInfo(build services.BuildInfo) ContainerOption {
	return func(c *containerConfig) {
		c.build = build
	}
}

// WithOrderEventPublisher attaches a publisher for order lifecycle events.
// When omitted, orders are placed without emitting events.
func WithOrderEventPublisher(publisher services.OrderEventPublisher) ContainerOption {
	return func(c *containerConfig) {
		c.orderEvents = publisher
	}
}

// WithPaymentManager substitutes a pre-built payment manager, bypassing the
// provider construction derived from configuration. Used by tests and by
// deployments that need bespoke provider wiring.
func WithPaymentManager(manager *payments.Manager) ContainerOption {
	return func(c *containerConfig) {
		c.payments = manager
	}
}

// NewContainer constructs the runtime dependencies over the supplied
// repository registry.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...ContainerOption) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	options := containerConfig{
		logger: zap.NewNop(),
		clock:  time.Now,
		idGen:  func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	manager := options.payments
	if manager == nil {
		built, err := buildPaymentManager(cfg.Payments, options.logger.Named("payments"))
		if err != nil {
			return nil, fmt.Errorf("build payment manager: %w", err)
		}
		manager = built
	}

	svc, reconciler, err := buildServices(ctx, cfg, reg, manager, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
		Payments:     manager,
		Reconciler:   reconciler,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, cfg config.Config, reg repositories.Registry, manager *payments.Manager, options containerConfig) (Services, *services.PaymentReconciler, error) {
	var svc Services

	couponSvc, err := services.NewCouponService(services.CouponServiceDeps{
		Coupons: reg.Coupons(),
		Usage:   reg.CouponUsage(),
		Clock:   options.clock,
		IDGen:   options.idGen,
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build coupon service: %w", err)
	}
	svc.Coupons = couponSvc

	delivery, err := services.NewDeliveryService(services.DeliveryServiceDeps{
		ServiceableBands: postalBands(cfg.Delivery.ServiceableBands),
		SurchargeBands:   postalBands(cfg.Delivery.SurchargeBands),
		SurchargeAmount:  cfg.Delivery.SurchargePaise,
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build delivery service: %w", err)
	}

	pricing, err := services.NewCartPricingEngine(services.CartPricingEngineDeps{
		Delivery:     delivery,
		Tax:          taxPolicy(cfg.Pricing),
		ShippingBase: cfg.Pricing.ShippingBasePaise,
		Currency:     cfg.Pricing.Currency,
		Now:          options.clock,
		Logger:       eventLogger(options.logger.Named("pricing")),
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build cart pricing engine: %w", err)
	}

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:   reg.Carts(),
		Catalog: reg.Catalog(),
		Pricing: pricing,
		Coupons: couponSvc,
		Clock:   options.clock,
		IDGen:   options.idGen,
		Logger:  eventLogger(options.logger.Named("cart")),
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
		Clock:      options.clock,
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counterSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:      reg.Orders(),
		Counters:    reg.Counters(),
		UnitOfWork:  reg,
		Clock:       options.clock,
		IDGenerator: options.idGen,
		Events:      options.orderEvents,
		Logger:      eventLogger(options.logger.Named("orders")),
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Cart:     cartSvc,
		Orders:   orderSvc,
		OrderLog: reg.Orders(),
		Coupons:  couponSvc,
		Payments: manager,
		Clock:    options.clock,
		KeyGen:   options.idGen,
		Logger:   eventLogger(options.logger.Named("checkout")),
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	reconciler, err := services.NewPaymentReconciler(services.PaymentReconcilerDeps{
		Orders:    reg.Orders(),
		Service:   orderSvc,
		Payments:  manager,
		Interval:  cfg.Reconciler.Interval,
		BatchSize: cfg.Reconciler.BatchSize,
		Clock:     options.clock,
		Logger:    eventLogger(options.logger.Named("reconciler")),
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build payment reconciler: %w", err)
	}

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Catalog: reg.Catalog(),
		Clock:   options.clock,
		IDGen:   options.idGen,
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:  reg.Users(),
		Clock:  options.clock,
		Logger: eventLogger(options.logger.Named("users")),
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            options.clock,
		Build:            options.build,
		Counters:         counterSvc,
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, reconciler, nil
}

// buildPaymentManager registers every gateway the configuration carries
// credentials for. Cashfree handles domestic INR traffic and stays the
// default; Stripe picks up everything routed to it explicitly.
func buildPaymentManager(cfg config.PaymentsConfig, logger *zap.Logger) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider, 2)

	if strings.TrimSpace(cfg.CashfreeClientID) != "" && strings.TrimSpace(cfg.CashfreeClientSecret) != "" {
		baseURL := payments.CashfreeSandboxURL
		if cfg.CashfreeEnvironment == "production" {
			baseURL = payments.CashfreeProductionURL
		}
		cashfree, err := payments.NewCashfreeProvider(payments.CashfreeProviderConfig{
			BaseURL:      baseURL,
			ClientID:     cfg.CashfreeClientID,
			ClientSecret: cfg.CashfreeClientSecret,
			Logger:       payments.CashfreeLogger(eventLogger(logger.Named("cashfree"))),
		})
		if err != nil {
			return nil, err
		}
		providers["cashfree"] = cashfree
	}

	if strings.TrimSpace(cfg.StripeAPIKey) != "" {
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.StripeAPIKey,
			Logger: payments.StripeLogger(eventLogger(logger.Named("stripe"))),
		})
		if err != nil {
			return nil, err
		}
		providers["stripe"] = stripe
	}

	if len(providers) == 0 {
		return nil, errors.New("no payment gateway credentials configured")
	}

	return payments.NewManager(providers)
}

func postalBands(bands []config.PostalBandConfig) []services.PostalBand {
	if len(bands) == 0 {
		return nil
	}
	out := make([]services.PostalBand, 0, len(bands))
	for _, band := range bands {
		out = append(out, services.PostalBand{From: band.From, To: band.To})
	}
	return out
}

// taxPolicy prefers a percentage rate; the flat amount only applies when no
// rate is configured so the two modes never stack.
func taxPolicy(cfg config.PricingConfig) services.TaxPolicy {
	if cfg.TaxRateBps > 0 {
		return services.RateTaxPolicy{Bps: cfg.TaxRateBps}
	}
	return services.FlatTaxPolicy{Amount: cfg.TaxFlatPaise}
}

func eventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zFields = append(zFields, zap.Any(key, value))
		}
		logger.Info(event, zFields...)
	}
}
