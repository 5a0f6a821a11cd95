package maker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Client is venue M's REST client: long-timeout HTTP session, HMAC
// request signing on every private call.
type Client struct {
	http     *resty.Client
	creds    Credentials
	leverage float64
	dryRun   bool
	logger   *slog.Logger
}

// NewClient constructs a venue M client. gateway is the REST API base;
// venue M's own published timeout guidance is 60s, which the teacher's
// client.go also uses for its HTTP session.
func NewClient(gateway string, creds Credentials, leverage float64, dryRun bool, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(gateway).
		SetTimeout(60 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &Client{http: httpClient, creds: creds, leverage: leverage, dryRun: dryRun, logger: logger}
}

// RequestToken fetches a public WS token by POSTing the onboarding URL —
// a separate, unauthenticated endpoint distinct from the REST gateway.
func RequestToken(ctx context.Context, onboardingURL string) (string, error) {
	var result struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	resp, err := resty.New().R().
		SetContext(ctx).
		SetResult(&result).
		Post(onboardingURL)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("request token: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.Data.Token, nil
}

type positionResponse struct {
	Data struct {
		Symbol        string  `json:"symbol"`
		AvgEntryPrice float64 `json:"avgEntryPrice"`
		CurrentQty    int64   `json:"currentQty"`
		RealLeverage  float64 `json:"realLeverage"`
		UnrealisedPnl float64 `json:"unrealisedPnl"`
	} `json:"data"`
}

// GetPosition fetches the current position for symbol (already translated
// via VenueSymbol by the caller or internally here).
func (c *Client) GetPosition(ctx context.Context, symbol string) (Position, error) {
	vSymbol := VenueSymbol(symbol)
	endpoint := "/api/v1/position"
	query := "?symbol=" + vSymbol

	headers := signHeaders(c.creds, "GET", endpoint, query)

	var result positionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParam("symbol", vSymbol).
		SetResult(&result).
		Get(endpoint)
	if err != nil {
		return Position{}, fmt.Errorf("get position: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Position{}, fmt.Errorf("get position: status %d: %s", resp.StatusCode(), resp.String())
	}

	return Position{
		Symbol:        result.Data.Symbol,
		AvgEntryPrice: result.Data.AvgEntryPrice,
		CurrentQty:    result.Data.CurrentQty,
		RealLeverage:  result.Data.RealLeverage,
		UnrealisedPnL: result.Data.UnrealisedPnl,
	}, nil
}

// PlaceLimitOrder places a post-only limit order. Venue M uses integer
// contract sizes.
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol string, isBuy bool, price float64, quantity int64) Response {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would place maker order", "symbol", symbol, "isBuy", isBuy, "price", price, "qty", quantity)
		return Response{OrderID: "dry-run"}
	}

	endpoint := "/api/v1/orders"
	side := "sell"
	if isBuy {
		side = "buy"
	}
	vSymbol := VenueSymbol(symbol)
	oid := uuid.NewString()

	body := map[string]string{
		"clientOid": oid,
		"symbol":    vSymbol,
		"side":      side,
		"price":     fmt.Sprintf("%v", price),
		"size":      fmt.Sprintf("%d", quantity),
		"leverage":  fmt.Sprintf("%v", c.leverage),
		"postOnly":  "true",
	}
	headers := signHeaders(c.creds, "POST", endpoint, jsonCanonical(body))

	var result struct {
		Data struct {
			OrderID string `json:"orderId"`
		} `json:"data"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		SetResult(&result).
		Post(endpoint)
	if err != nil {
		return Response{Error: fmt.Errorf("place limit order: %w", err)}
	}
	if resp.StatusCode() != http.StatusOK {
		return Response{Error: fmt.Errorf("place limit order: status %d: %s", resp.StatusCode(), resp.String())}
	}
	return Response{OrderID: result.Data.OrderID}
}

// CancelAllOrders cancels every resting order, optionally scoped to one
// symbol.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) Response {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel all maker orders", "symbol", symbol)
		return Response{}
	}

	endpoint := "/api/v1/orders"
	query := ""
	if symbol != "" {
		query = "?symbol=" + VenueSymbol(symbol)
	}
	headers := signHeaders(c.creds, "DELETE", endpoint, query)

	req := c.http.R().SetContext(ctx).SetHeaders(headers)
	if symbol != "" {
		req = req.SetQueryParam("symbol", VenueSymbol(symbol))
	}
	resp, err := req.Delete(endpoint)
	if err != nil {
		return Response{Error: fmt.Errorf("cancel all orders: %w", err)}
	}
	if resp.StatusCode() != http.StatusOK {
		return Response{Error: fmt.Errorf("cancel all orders: status %d: %s", resp.StatusCode(), resp.String())}
	}
	return Response{}
}

// GetTransactionHistory fetches the account's transaction ledger, used by
// Stats to roll up account equity.
func (c *Client) GetTransactionHistory(ctx context.Context) ([]TransactionHistoryEntry, error) {
	endpoint := "/api/v1/transaction-history"
	headers := signHeaders(c.creds, "GET", endpoint, "")

	var result struct {
		Data struct {
			DataList []struct {
				Amount float64 `json:"amount"`
				Type   string  `json:"type"`
			} `json:"dataList"`
		} `json:"data"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("get transaction history: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get transaction history: status %d: %s", resp.StatusCode(), resp.String())
	}

	out := make([]TransactionHistoryEntry, len(result.Data.DataList))
	for i, e := range result.Data.DataList {
		out[i] = TransactionHistoryEntry{Amount: e.Amount, Type: e.Type}
	}
	return out, nil
}

// GetPositionList fetches every open position across all symbols.
func (c *Client) GetPositionList(ctx context.Context) (PositionList, error) {
	endpoint := "/api/v1/positions"
	headers := signHeaders(c.creds, "GET", endpoint, "")

	var result struct {
		Data []struct {
			Symbol        string  `json:"symbol"`
			AvgEntryPrice float64 `json:"avgEntryPrice"`
			CurrentQty    int64   `json:"currentQty"`
			RealLeverage  float64 `json:"realLeverage"`
			UnrealisedPnl float64 `json:"unrealisedPnl"`
		} `json:"data"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get(endpoint)
	if err != nil {
		return PositionList{}, fmt.Errorf("get position list: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return PositionList{}, fmt.Errorf("get position list: status %d: %s", resp.StatusCode(), resp.String())
	}

	positions := make([]Position, len(result.Data))
	for i, p := range result.Data {
		positions[i] = Position{
			Symbol:        p.Symbol,
			AvgEntryPrice: p.AvgEntryPrice,
			CurrentQty:    p.CurrentQty,
			RealLeverage:  p.RealLeverage,
			UnrealisedPnL: p.UnrealisedPnl,
		}
	}
	return PositionList{Positions: positions}, nil
}

// GetPrivateSocketURL obtains an authenticated websocket endpoint URL for
// the private user-data feed.
func (c *Client) GetPrivateSocketURL(ctx context.Context) (string, error) {
	endpoint := "/api/v1/bullet-private"
	headers := signHeaders(c.creds, "POST", endpoint, "")

	var result struct {
		Data struct {
			InstanceServers []struct {
				Endpoint string `json:"endpoint"`
			} `json:"instanceServers"`
			Token string `json:"token"`
		} `json:"data"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Post(endpoint)
	if err != nil {
		return "", fmt.Errorf("get private socket url: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("get private socket url: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(result.Data.InstanceServers) == 0 {
		return "", fmt.Errorf("get private socket url: no instance servers returned")
	}
	return result.Data.InstanceServers[0].Endpoint + "?token=" + result.Data.Token, nil
}

// GetFillSizeForTimeWindow sums the executed size of fills on (market,
// side) since sinceMs, used by the stats/flow bookkeeping to measure
// recent trading activity.
func (c *Client) GetFillSizeForTimeWindow(ctx context.Context, symbol, side string, sinceMs int64) (int64, error) {
	endpoint := "/api/v1/fills"
	vSymbol := VenueSymbol(symbol)
	query := fmt.Sprintf("?symbol=%s&side=%s&startAt=%d", vSymbol, side, sinceMs)
	headers := signHeaders(c.creds, "GET", endpoint, query)

	var result struct {
		Data struct {
			Items []struct {
				Size int64 `json:"size"`
			} `json:"items"`
		} `json:"data"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParam("symbol", vSymbol).
		SetQueryParam("side", side).
		SetQueryParam("startAt", fmt.Sprintf("%d", sinceMs)).
		SetResult(&result).
		Get(endpoint)
	if err != nil {
		return 0, fmt.Errorf("get fill size: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("get fill size: status %d: %s", resp.StatusCode(), resp.String())
	}

	var total int64
	for _, item := range result.Data.Items {
		total += item.Size
	}
	return total, nil
}

// jsonCanonical renders a string map as compact JSON with sorted keys, to
// match what the HMAC signature was computed over byte-for-byte.
func jsonCanonical(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(fmt.Sprintf("%q:%q", k, m[k]))
	}
	b.WriteByte('}')
	return b.String()
}
