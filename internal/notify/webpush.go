package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"gopkg.in/yaml.v3"

	"github.com/crewbase/crewsync/internal/event"
	"github.com/crewbase/crewsync/pkg/cerr"
	"github.com/crewbase/crewsync/pkg/storage"
)

// Subscription is one browser push endpoint registered by an operator.
type Subscription struct {
	ID        string `yaml:"id"`
	Endpoint  string `yaml:"endpoint"`
	P256dhKey string `yaml:"p256dh_key"`
	AuthKey   string `yaml:"auth_key"`
}

const subscriptionsPrefix = "subscriptions"

// SubscriptionRepository persists push subscriptions as YAML documents.
type SubscriptionRepository struct {
	store storage.Store
}

func NewSubscriptionRepository(store storage.Store) *SubscriptionRepository {
	return &SubscriptionRepository{store: store}
}

func subscriptionPath(id string) string {
	return fmt.Sprintf("%s/%s.yaml", subscriptionsPrefix, id)
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *Subscription) error {
	data, err := yaml.Marshal(sub)
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to marshal subscription", err)
	}
	if err := r.store.Write(ctx, subscriptionPath(sub.ID), data); err != nil {
		return cerr.WrapStorageWriteError("subscription", err)
	}
	return nil
}

func (r *SubscriptionRepository) List(ctx context.Context) ([]*Subscription, error) {
	paths, err := r.store.List(ctx, subscriptionsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("subscriptions", err)
	}
	var subs []*Subscription
	for _, p := range paths {
		data, err := r.store.Read(ctx, p)
		if err != nil {
			continue
		}
		var sub Subscription
		if err := yaml.Unmarshal(data, &sub); err != nil {
			continue
		}
		subs = append(subs, &sub)
	}
	return subs, nil
}

func (r *SubscriptionRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, subscriptionPath(id)); err != nil {
		return cerr.WrapStorageReadError("subscription", err)
	}
	return nil
}

// VAPIDConfig carries the web push signing material.
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Contact    string
}

type pushPayload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Severity string `json:"severity"`
}

// WebPushNotifier delivers notifications to every registered browser
// subscription. Expired subscriptions are pruned on delivery.
type WebPushNotifier struct {
	vapid VAPIDConfig
	repo  *SubscriptionRepository
}

func NewWebPushNotifier(vapid VAPIDConfig, repo *SubscriptionRepository) *WebPushNotifier {
	return &WebPushNotifier{vapid: vapid, repo: repo}
}

func (n *WebPushNotifier) Notify(ctx context.Context, title, message string, severity event.Severity) error {
	if n.vapid.PublicKey == "" || n.vapid.PrivateKey == "" {
		return cerr.NewError(cerr.NotificationDelivery, "VAPID keys not configured", nil)
	}

	subs, err := n.repo.List(ctx)
	if err != nil {
		return cerr.NewError(cerr.NotificationDelivery, "failed to list subscriptions", err)
	}

	data, err := json.Marshal(pushPayload{
		Title:    title,
		Body:     message,
		Severity: severity.String(),
	})
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to marshal push payload", err)
	}

	var lastErr error
	for _, sub := range subs {
		if err := n.send(ctx, sub, data); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (n *WebPushNotifier) send(ctx context.Context, sub *Subscription, data []byte) error {
	resp, err := webpush.SendNotification(data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  n.vapid.PublicKey,
		VAPIDPrivateKey: n.vapid.PrivateKey,
		Subscriber:      n.vapid.Contact,
		TTL:             86400,
	})
	if err != nil {
		return cerr.NewError(cerr.NotificationDelivery, fmt.Sprintf("push to %s failed", sub.Endpoint), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		// Subscription expired; drop it so we stop pushing into the void.
		_ = n.repo.Delete(ctx, sub.ID)
	}
	return nil
}
