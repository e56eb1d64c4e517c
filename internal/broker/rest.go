package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	xhttp "TradePulse/pkg/http"
	"TradePulse/pkg/logger"
)

// RESTBroker talks to a live broker's order gateway over HTTPS. It
// classifies responses so the order manager can tell a definitive
// decline from a transient failure.
type RESTBroker struct {
	client  *xhttp.Client
	baseURL string
	logger  *logger.Logger

	mu    sync.RWMutex
	token string
}

// NewRESTBroker creates a live broker adapter.
func NewRESTBroker(baseURL string, timeout time.Duration, log *logger.Logger) *RESTBroker {
	return &RESTBroker{
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		baseURL: baseURL,
		logger:  log.With("broker"),
	}
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticate opens a session and stores the token for later calls.
func (b *RESTBroker) Authenticate(ctx context.Context, creds models.Credentials) (*models.Session, error) {
	var resp sessionResponse
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + "/session",
		Body: map[string]string{
			"client_id": creds.ClientID,
			"api_key":   creds.APIKey,
			"secret":    creds.Secret,
		},
	}, &resp)
	if err != nil {
		return nil, classify(err)
	}

	b.mu.Lock()
	b.token = resp.Token
	b.mu.Unlock()

	return &models.Session{Token: resp.Token, ExpiresAt: resp.ExpiresAt}, nil
}

type placeResponse struct {
	BrokerOrderID string `json:"broker_order_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
}

// PlaceOrder submits the order under the current session token.
func (b *RESTBroker) PlaceOrder(ctx context.Context, o *models.Order) (*models.Placement, error) {
	b.mu.RLock()
	token := b.token
	b.mu.RUnlock()
	if token == "" {
		return nil, repository.ErrSessionExpired
	}

	var resp placeResponse
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     b.baseURL + "/orders",
		Headers: map[string]string{"Authorization": "Bearer " + token},
		Body: map[string]interface{}{
			"client_order_id": o.OrderID,
			"symbol":          o.Symbol,
			"side":            string(o.Side),
			"type":            string(o.Type),
			"quantity":        o.Quantity,
			"limit_price":     o.LimitPrice,
		},
	}, &resp)
	if err != nil {
		return nil, classify(err)
	}

	status := models.OrderStatus(resp.Status)
	if status == models.StatusRejected {
		return nil, fmt.Errorf("%w: %s", repository.ErrBrokerDeclined, resp.Reason)
	}
	return &models.Placement{BrokerOrderID: resp.BrokerOrderID, Status: status}, nil
}

// Logout closes the session at the broker.
func (b *RESTBroker) Logout(ctx context.Context) error {
	b.mu.Lock()
	token := b.token
	b.token = ""
	b.mu.Unlock()
	if token == "" {
		return nil
	}

	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodDelete,
		URL:     b.baseURL + "/session",
		Headers: map[string]string{"Authorization": "Bearer " + token},
	}, nil)
	if err != nil {
		b.logger.Warn("logout", logger.Error(err))
	}
	return nil
}

// classify maps transport results onto the error taxonomy: 401 means
// the token lapsed, other 4xx is a definitive decline, everything else
// stays transient and retryable.
func classify(err error) error {
	var se *xhttp.StatusError
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", repository.ErrSessionExpired, se.Body)
	case se.StatusCode >= 400 && se.StatusCode < 500:
		return fmt.Errorf("%w: status %d: %s", repository.ErrBrokerDeclined, se.StatusCode, se.Body)
	default:
		return err
	}
}
