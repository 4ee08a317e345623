package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lexpraxis/backend-lexis/internal/events"
	"github.com/lexpraxis/backend-lexis/internal/obs"
)

// Dispatcher coordinates webhook scheduling and delivery.
type Dispatcher struct {
	Store              Store
	Client             *http.Client
	BackoffBaseSec     int
	DefaultMaxAttempts int
	Enabled            bool
	Replay             ReplayProtector
	ReplayTTL          time.Duration
}

// Schedule enqueues deliveries for active endpoints subscribed to the topic.
// Used as an event bus subscriber via Notify.
func (d *Dispatcher) Schedule(ctx context.Context, evt events.Event) error {
	if d == nil || !d.Enabled || d.Store == nil {
		return nil
	}
	if evt.Topic == "" {
		return nil
	}
	endpoints, err := d.Store.ListActiveEndpointsForTopic(ctx, evt.Topic)
	if err != nil {
		return err
	}
	maxAttempt := d.DefaultMaxAttempts
	if maxAttempt <= 0 {
		maxAttempt = 6
	}
	var joined error
	for _, ep := range endpoints {
		if _, err := d.Store.EnqueueDelivery(ctx, ep.ID, evt.ID, maxAttempt); err != nil {
			joined = errors.Join(joined, fmt.Errorf("enqueue delivery for %s: %w", ep.ID, err))
		}
	}
	return joined
}

// Notify satisfies events.Subscriber. Scheduling failures are swallowed here;
// the event itself is already persisted and can be replayed.
func (d *Dispatcher) Notify(ctx context.Context, evt events.Event) {
	_ = d.Schedule(ctx, evt)
}

// WorkOnce dequeues eligible deliveries and attempts each one.
func (d *Dispatcher) WorkOnce(ctx context.Context, batch int) error {
	if d == nil || !d.Enabled || d.Store == nil {
		return nil
	}
	if batch <= 0 {
		batch = 1
	}
	ctx, span := otel.Tracer("notify.Dispatcher").Start(ctx, "Dispatcher.WorkOnce")
	defer span.End()
	span.SetAttributes(attribute.Int("webhook.batch", batch))

	deliveries, err := d.Store.DequeueDueDeliveries(ctx, batch)
	if err != nil {
		span.RecordError(err)
		return err
	}
	for _, del := range deliveries {
		if obs.WebhookDispatchAttempts != nil {
			obs.WebhookDispatchAttempts.Inc()
		}
		if err := d.Store.MarkDelivering(ctx, del.ID); err != nil {
			continue
		}
		endpoint, err := d.Store.GetEndpoint(ctx, del.EndpointID)
		if err != nil {
			_ = d.failDelivery(ctx, del, fmt.Errorf("load endpoint: %w", err))
			continue
		}
		event, err := d.Store.GetEvent(ctx, del.EventID)
		if err != nil {
			_ = d.failDelivery(ctx, del, fmt.Errorf("load event: %w", err))
			continue
		}
		status, respBody, deliverErr := d.deliver(ctx, endpoint, event, del)
		if deliverErr == nil && status >= 200 && status < 300 {
			if obs.WebhookDeliveriesTotal != nil {
				obs.WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()
			}
			if err := d.Store.MarkDelivered(ctx, del.ID, status, respBody); err != nil {
				return err
			}
			continue
		}
		_ = d.failDelivery(ctx, del, fmt.Errorf("status=%d err=%v", status, deliverErr))
	}
	return nil
}

// DeliverByID runs one delivery immediately, used for manual replays.
func (d *Dispatcher) DeliverByID(ctx context.Context, id uuid.UUID) error {
	del, err := d.Store.GetDelivery(ctx, id)
	if err != nil {
		return err
	}
	if err := d.Store.MarkDelivering(ctx, del.ID); err != nil {
		return err
	}
	endpoint, err := d.Store.GetEndpoint(ctx, del.EndpointID)
	if err != nil {
		return d.failDelivery(ctx, del, err)
	}
	event, err := d.Store.GetEvent(ctx, del.EventID)
	if err != nil {
		return d.failDelivery(ctx, del, err)
	}
	status, respBody, deliverErr := d.deliver(ctx, endpoint, event, del)
	if deliverErr == nil && status >= 200 && status < 300 {
		if obs.WebhookDeliveriesTotal != nil {
			obs.WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()
		}
		return d.Store.MarkDelivered(ctx, del.ID, status, respBody)
	}
	return d.failDelivery(ctx, del, fmt.Errorf("status=%d err=%v", status, deliverErr))
}

func (d *Dispatcher) nextDelay(attempt int) time.Duration {
	base := d.BackoffBaseSec
	if base <= 0 {
		base = 5
	}
	factor := 1 << attempt
	if factor < 1 {
		factor = 1
	}
	return time.Duration(base*factor) * time.Second
}

func (d *Dispatcher) failDelivery(ctx context.Context, del Delivery, cause error) error {
	reason := cause.Error()
	if del.Attempt+1 >= del.MaxAttempt {
		if obs.WebhookDeliveriesTotal != nil {
			obs.WebhookDeliveriesTotal.WithLabelValues("dlq").Inc()
		}
		return d.Store.MoveToDLQ(ctx, del.ID, reason)
	}
	if obs.WebhookDeliveriesTotal != nil {
		obs.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
	}
	return d.Store.MarkFailedWithBackoff(ctx, del.ID, d.nextDelay(del.Attempt), reason)
}

func (d *Dispatcher) deliver(ctx context.Context, ep Endpoint, evt events.Event, del Delivery) (int, string, error) {
	if d.Client == nil {
		d.Client = HTTPClient(5*time.Second, false)
	}
	ctx, span := otel.Tracer("notify.Dispatcher").Start(ctx, "Dispatcher.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.endpoint_id", ep.ID.String()),
		attribute.String("webhook.delivery_id", del.ID.String()),
		attribute.String("webhook.topic", evt.Topic),
	)
	if err := validateURL(ep.URL); err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	payload := struct {
		EventID    string          `json:"eventId"`
		Topic      string          `json:"topic"`
		Data       json.RawMessage `json:"data"`
		OccurredAt time.Time       `json:"occurredAt"`
	}{
		EventID:    evt.ID.String(),
		Topic:      evt.Topic,
		Data:       evt.Payload,
		OccurredAt: evt.CreatedAt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	ts := time.Now().Unix()
	if d.Replay != nil && d.ReplayTTL > 0 {
		key := fmt.Sprintf("wh:%s:%s", ep.ID, evt.ID)
		ok, err := d.Replay.Acquire(ctx, key, d.ReplayTTL)
		if err != nil {
			span.RecordError(err)
			return 0, "", err
		}
		if !ok {
			span.AddEvent("delivery replay prevented")
			return http.StatusOK, "replay-suppressed", nil
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "lexis-webhooks/1.0")
	req.Header.Set("X-Event-ID", evt.ID.String())
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Idempotency-Key", del.ID.String())
	req.Header.Set("X-Signature", ComputeSignature(ep.Secret, ts, evt.ID.String(), body))
	resp, err := d.Client.Do(req)
	if err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if err != nil {
		span.RecordError(err)
		return resp.StatusCode, "", err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp.StatusCode, string(responseBody), nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	return nil
}

// ComputeSignature calculates the webhook signature for a payload. The format
// is HMAC-SHA256 over "<ts>.<eventID>.<body>" using the endpoint secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HTTPClient returns an HTTP client configured for webhook delivery.
func HTTPClient(timeout time.Duration, insecure bool) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	transport := &http.Transport{}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
	}
}

// ReplayProtector guards against sending duplicate deliveries within a TTL.
type ReplayProtector interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
