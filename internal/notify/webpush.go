package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/socialauth/internal/security"
)

const (
	defaultPushTTL            = 24 * time.Hour
	defaultPushMaxConcurrent  = 8
	defaultPushRequestTimeout = 5 * time.Second
)

// WebPushConfig はWeb Push送信の設定。
type WebPushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string // VAPIDのsub（mailto:またはURL）
	TTL             time.Duration
	MaxConcurrent   int
	RequestTimeout  time.Duration
}

// WebPushSender はWeb Push Protocol（VAPID）でブラウザへ通知を送る。
// トークンはブラウザのPushSubscriptionをJSONにしたもの。
type WebPushSender struct {
	config WebPushConfig
	guard  security.EndpointGuard
	client *http.Client
}

// NewWebPushSender はWebPushSenderを生成する。
// 購読のエンドポイントはクライアントが送ってくる値のため、SSRF対策済みのHTTPクライアントで送信する。
func NewWebPushSender(config WebPushConfig, guard security.EndpointGuard) *WebPushSender {
	if config.TTL <= 0 {
		config.TTL = defaultPushTTL
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaultPushMaxConcurrent
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaultPushRequestTimeout
	}
	return &WebPushSender{
		config: config,
		guard:  guard,
		client: guard.NewSafeClient(config.RequestTimeout),
	}
}

// SendMulticast は各トークンへ並列に送信し、トークンごとの結果を返す。
// 個々の送信失敗は結果に含め、エラーとしては返さない。
func (s *WebPushSender) SendMulticast(ctx context.Context, tokens []string, msg Message) ([]SendResult, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode push payload: %w", err)
	}

	results := make([]SendResult, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrent)

	for i, token := range tokens {
		g.Go(func() error {
			results[i] = SendResult{Token: token, Err: s.send(gctx, token, payload)}
			return nil
		})
	}
	// 各goroutineはnilしか返さない
	_ = g.Wait()

	return results, nil
}

func (s *WebPushSender) send(ctx context.Context, token string, payload []byte) error {
	sub, err := decodeSubscription(token)
	if err != nil {
		return err
	}
	if err := s.guard.ValidateEndpoint(sub.Endpoint); err != nil {
		return fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.config.Subject,
		VAPIDPublicKey:  s.config.VAPIDPublicKey,
		VAPIDPrivateKey: s.config.VAPIDPrivateKey,
		TTL:             int(s.config.TTL.Seconds()),
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("failed to send web push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return classifyPushStatus(resp.StatusCode)
}

// decodeSubscription はトークンをPushSubscriptionとして解釈する。
func decodeSubscription(token string) (*webpush.Subscription, error) {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(token), &sub); err != nil {
		return nil, fmt.Errorf("%w: malformed subscription: %w", ErrTokenInvalid, err)
	}
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return nil, fmt.Errorf("%w: incomplete subscription", ErrTokenInvalid)
	}
	return &sub, nil
}

// classifyPushStatus はプッシュサービスの応答ステータスをエラーに変換する。
// 404と410は購読が失効したことを表す。
func classifyPushStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound || status == http.StatusGone:
		return fmt.Errorf("%w: push service responded %d", ErrTokenUnregistered, status)
	default:
		return fmt.Errorf("push service responded %d", status)
	}
}

// compile-time interface check
var _ PushSender = (*WebPushSender)(nil)
