package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"polymarket-maker-go/config"
	"polymarket-maker-go/market"
	"polymarket-maker-go/order"
)

// ErrNoMatch is returned by PlaceLiquidation when a fill-and-kill order finds
// no counterparty. Callers treat it as "nothing crossed", not a failure.
var ErrNoMatch = errors.New("no orders found to match")

const (
	bookPath      = "/book"
	orderPath     = "/order"
	cancelAllPath = "/cancel-all"

	fetchRetries  = 2
	baseRetryWait = 500 * time.Millisecond
)

// Client 一个限流的 CLOB REST 客户端；HTTPClient 可注入 httptest 做离线测试。
// Mutating calls (place/cancel) are never retried: a duplicated bid is worse
// than a missed cycle, the next reconcile pass repairs the book anyway.
type Client struct {
	baseURL    string
	apiKey     string
	passphrase string
	HTTPClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

// NewClient builds a REST client from gateway config.
func NewClient(cfg config.GatewayConfig, log *zap.Logger) *Client {
	burst := cfg.RestBurst
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.HTTPURL, "/"),
		apiKey:     cfg.APIKey,
		passphrase: cfg.APIPassphrase,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RestRate), burst),
		log:        log,
	}
}

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type bookResponse struct {
	Market  string      `json:"market"`
	AssetID string      `json:"asset_id"`
	Bids    []bookLevel `json:"bids"`
	Asks    []bookLevel `json:"asks"`
}

// FetchBook pulls a full depth snapshot for one outcome token.
// GETs are idempotent so transient failures are retried with backoff.
func (c *Client) FetchBook(ctx context.Context, tokenID string) (*market.Book, error) {
	var resp bookResponse
	var lastErr error
	for attempt := 0; attempt <= fetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * baseRetryWait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		lastErr = c.do(ctx, http.MethodGet, bookPath+"?token_id="+tokenID, nil, &resp)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("fetch book %s: %w", tokenID, lastErr)
	}

	book := &market.Book{
		TokenID:   tokenID,
		Bids:      make([]market.Level, 0, len(resp.Bids)),
		Asks:      make([]market.Level, 0, len(resp.Asks)),
		Timestamp: time.Now(),
	}
	for _, l := range resp.Bids {
		lvl, err := parseLevel(l)
		if err != nil {
			return nil, fmt.Errorf("fetch book %s: bad bid level: %w", tokenID, err)
		}
		book.Bids = append(book.Bids, lvl)
	}
	for _, l := range resp.Asks {
		lvl, err := parseLevel(l)
		if err != nil {
			return nil, fmt.Errorf("fetch book %s: bad ask level: %w", tokenID, err)
		}
		book.Asks = append(book.Asks, lvl)
	}
	return book, nil
}

func parseLevel(l bookLevel) (market.Level, error) {
	price, err := strconv.ParseFloat(l.Price, 64)
	if err != nil {
		return market.Level{}, err
	}
	size, err := strconv.ParseFloat(l.Size, 64)
	if err != nil {
		return market.Level{}, err
	}
	return market.Level{Price: price, Size: size}, nil
}

type placeOrderRequest struct {
	TokenID       string `json:"token_id"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	OrderType     string `json:"order_type"`
	ClientOrderID string `json:"client_order_id"`
}

type placeOrderResponse struct {
	Success      bool   `json:"success"`
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	Status       string `json:"status"`
	MakingAmount string `json:"makingAmount"`
	TakingAmount string `json:"takingAmount"`
}

// PlaceBid rests a GTC limit buy. Implements order.Gateway.
func (c *Client) PlaceBid(ctx context.Context, tokenID string, price, size float64) (*order.Order, error) {
	req := placeOrderRequest{
		TokenID:       tokenID,
		Side:          string(market.SideBuy),
		Price:         strconv.FormatFloat(price, 'f', 2, 64),
		Size:          strconv.FormatFloat(size, 'f', 2, 64),
		OrderType:     "GTC",
		ClientOrderID: uuid.NewString(),
	}
	var resp placeOrderResponse
	if err := c.do(ctx, http.MethodPost, orderPath, req, &resp); err != nil {
		return nil, fmt.Errorf("place bid %s @%.2f: %w", tokenID, price, err)
	}
	if !resp.Success || resp.OrderID == "" {
		return nil, fmt.Errorf("place bid %s @%.2f rejected: %s", tokenID, price, resp.ErrorMsg)
	}

	now := time.Now()
	return &order.Order{
		ID:        resp.OrderID,
		TokenID:   tokenID,
		Side:      market.SideBuy,
		Price:     price,
		Size:      size,
		Status:    order.StatusLive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

type cancelRequest struct {
	OrderID string `json:"orderID"`
}

type cancelResponse struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

// CancelOrder removes one resting order. ack=false with nil error means the
// venue answered but did not confirm the cancel (already filled, already
// gone); the caller decides whether to park the id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	var resp cancelResponse
	if err := c.do(ctx, http.MethodDelete, orderPath, cancelRequest{OrderID: orderID}, &resp); err != nil {
		return false, fmt.Errorf("cancel %s: %w", orderID, err)
	}
	for _, id := range resp.Canceled {
		if id == orderID {
			return true, nil
		}
	}
	if reason, found := resp.NotCanceled[orderID]; found {
		c.log.Debug("cancel not acked", zap.String("order_id", orderID), zap.String("reason", reason))
	}
	return false, nil
}

// CancelAll bulk-cancels every resting order of the API key and returns how
// many the venue reported canceled.
func (c *Client) CancelAll(ctx context.Context) (int, error) {
	var resp cancelResponse
	if err := c.do(ctx, http.MethodDelete, cancelAllPath, nil, &resp); err != nil {
		return 0, fmt.Errorf("cancel all: %w", err)
	}
	return len(resp.Canceled), nil
}

// PlaceLiquidation fires a fill-and-kill sell at the given price and returns
// the matched size. ErrNoMatch when the book had no counterparty; partial
// matches are normal and reported as-is.
func (c *Client) PlaceLiquidation(ctx context.Context, tokenID string, price, size float64) (float64, error) {
	req := placeOrderRequest{
		TokenID:       tokenID,
		Side:          string(market.SideSell),
		Price:         strconv.FormatFloat(price, 'f', 2, 64),
		Size:          strconv.FormatFloat(size, 'f', 2, 64),
		OrderType:     "FAK",
		ClientOrderID: uuid.NewString(),
	}
	var resp placeOrderResponse
	if err := c.do(ctx, http.MethodPost, orderPath, req, &resp); err != nil {
		return 0, fmt.Errorf("liquidate %s: %w", tokenID, err)
	}
	if !resp.Success {
		if strings.Contains(strings.ToLower(resp.ErrorMsg), "no orders found to match") {
			return 0, ErrNoMatch
		}
		return 0, fmt.Errorf("liquidate %s rejected: %s", tokenID, resp.ErrorMsg)
	}
	// 卖单的成交量在 makingAmount 字段里
	filled, err := strconv.ParseFloat(resp.MakingAmount, 64)
	if err != nil {
		return size, nil
	}
	return filled, nil
}

// do runs one rate-limited JSON round-trip.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("POLY-API-KEY", c.apiKey)
		req.Header.Set("POLY-PASSPHRASE", c.passphrase)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s status %d: %s", method, path, resp.StatusCode, string(payload))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
