package registrar

import (
	"context"

	"github.com/Jcapehart2/lockerlink/internal/eventbus"
	"github.com/Jcapehart2/lockerlink/internal/lockerlink"
	"github.com/Jcapehart2/lockerlink/internal/orders"
)

//go:generate mockgen -destination=mocks/mock_subscriptions.go -package=mocks github.com/Jcapehart2/lockerlink/internal/registrar SubscriptionAPI

// SubscriptionAPI is the event-bus surface used to manage subscriptions.
type SubscriptionAPI interface {
	CreateSubscription(ctx context.Context, sub eventbus.Subscription) (int64, error)
	DeleteSubscription(ctx context.Context, id int64) error
	ListSubscriptions(ctx context.Context, f eventbus.Filter) ([]eventbus.Subscription, error)
}

// OptionStore persists the owned subscription set.
type OptionStore interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// CredentialSource yields the current integration credentials.
type CredentialSource interface {
	Credentials(ctx context.Context) (lockerlink.Credentials, error)
}

// OrderLookup resolves orders for the delivery filter.
type OrderLookup interface {
	Get(ctx context.Context, id int64) (*orders.Order, error)
}

// FilterInstaller accepts a delivery filter. *eventbus.Bus satisfies it.
type FilterInstaller interface {
	AddFilter(f eventbus.DeliveryFilter)
}
