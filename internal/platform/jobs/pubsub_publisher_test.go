package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kiranakart/api/internal/services"
)

func TestPubSubOrderEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}

	occurredAt := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	event := services.OrderEvent{
		Type:           "order.paid",
		OrderID:        "ord_test",
		OrderNumber:    "KK-2025-000042",
		PreviousStatus: "pending_payment",
		CurrentStatus:  "paid",
		ActorID:        "uid-1",
		OccurredAt:     occurredAt,
		Metadata:       map[string]any{"gateway": "cashfree"},
	}

	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload orderEventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Type != event.Type || payload.OrderID != event.OrderID {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if !payload.OccurredAt.Equal(occurredAt) {
		t.Fatalf("unexpected occurredAt %s", payload.OccurredAt)
	}
	if attr := messages[0].Attributes["orderNumber"]; attr != "KK-2025-000042" {
		t.Fatalf("expected order number attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["currentStatus"]; attr != "paid" {
		t.Fatalf("expected status attribute, got %q", attr)
	}
}

func TestPubSubOrderEventPublisherValidatesEvent(t *testing.T) {
	publisher := &PubSubOrderEventPublisher{topic: &pubsub.Topic{}, marshal: json.Marshal}

	if err := publisher.PublishOrderEvent(context.Background(), services.OrderEvent{OrderID: "ord_1"}); err == nil {
		t.Fatal("expected error for missing event type")
	}
	if err := publisher.PublishOrderEvent(context.Background(), services.OrderEvent{Type: "order.placed"}); err == nil {
		t.Fatal("expected error for missing order id")
	}
}
