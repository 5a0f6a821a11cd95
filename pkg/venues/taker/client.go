package taker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// Client is venue T's REST client: onboarding, market metadata, order
// signing/submission, and position lookups. AuthToken is mutated only by
// Onboard, matching the single-owner auth-token contract in spec §5.
type Client struct {
	http          *resty.Client
	wallet        *Wallet
	onboardingURL string
	leverage      uint64

	mu        sync.RWMutex
	authToken string
	markets   map[string]MarketMeta

	logger *slog.Logger
}

// NewClient constructs a venue T client. restBase is the API gateway; the
// venue's websocket URL is not taken here — the caller hands it to the
// stream package directly.
func NewClient(walletKeyHex, restBase, onboardingURL string, leverage uint64, logger *slog.Logger) (*Client, error) {
	wallet, err := NewWallet(walletKeyHex)
	if err != nil {
		return nil, fmt.Errorf("taker wallet: %w", err)
	}

	httpClient := resty.New().
		SetBaseURL(restBase).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:          httpClient,
		wallet:        wallet,
		onboardingURL: onboardingURL,
		leverage:      leverage,
		markets:       make(map[string]MarketMeta),
		logger:        logger,
	}, nil
}

// Address returns this client's wallet address.
func (c *Client) Address() string { return c.wallet.Address() }

// AuthToken returns the current bearer token, or "" before Onboard.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

type onboardResponse struct {
	Token string `json:"token"`
}

// Onboard performs the /authorize handshake and mutates AuthToken.
func (c *Client) Onboard(ctx context.Context) error {
	sig, err := c.wallet.SignOnboarding(c.onboardingURL)
	if err != nil {
		return fmt.Errorf("sign onboarding: %w", err)
	}

	body := struct {
		Signature       string `json:"signature"`
		UserAddress     string `json:"userAddress"`
		IsTermAccepted  string `json:"isTermAccepted"`
	}{
		Signature:      sig,
		UserAddress:    c.wallet.Address(),
		IsTermAccepted: "True",
	}

	var result onboardResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/authorize")
	if err != nil {
		return fmt.Errorf("onboard: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("onboard: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.mu.Lock()
	c.authToken = result.Token
	c.mu.Unlock()

	c.logger.Info("taker venue onboarded", "address", c.wallet.Address())
	return nil
}

type marketMetaResponse struct {
	PerpetualAddress struct {
		ID string `json:"id"`
	} `json:"perpetualAddress"`
}

// FetchMarkets populates the symbol→market-id map for the given symbols.
func (c *Client) FetchMarkets(ctx context.Context, symbols []string) error {
	for _, sym := range symbols {
		var result marketMetaResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("symbol", sym).
			SetResult(&result).
			Get("/meta")
		if err != nil {
			return fmt.Errorf("fetch market %s: %w", sym, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return fmt.Errorf("fetch market %s: status %d: %s", sym, resp.StatusCode(), resp.String())
		}

		c.mu.Lock()
		c.markets[sym] = MarketMeta{Symbol: sym, ID: result.PerpetualAddress.ID}
		c.mu.Unlock()
	}
	return nil
}

// MarketID returns the onchain market id for a symbol, if known.
func (c *Client) MarketID(symbol string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markets[symbol]
	return m.ID, ok
}

// CreateMarketOrder builds (unsigned) a MARKET order for symbol.
func (c *Client) CreateMarketOrder(symbol string, isBuy, reduceOnly bool, quantityF64 float64) (Order, error) {
	marketID, ok := c.MarketID(symbol)
	if !ok {
		return Order{}, fmt.Errorf("unknown market %s: call FetchMarkets first", symbol)
	}
	salt := uint64(time.Now().UnixMilli())
	return NewMarketOrder(marketID, c.wallet.Address(), isBuy, reduceOnly, quantityF64, c.leverage, salt), nil
}

// CreateLimitIOCOrder builds (unsigned) a LIMIT/IOC order for symbol.
func (c *Client) CreateLimitIOCOrder(symbol string, isBuy, reduceOnly bool, priceF64, quantityF64 float64, expiration uint64) (Order, error) {
	marketID, ok := c.MarketID(symbol)
	if !ok {
		return Order{}, fmt.Errorf("unknown market %s: call FetchMarkets first", symbol)
	}
	salt := uint64(time.Now().UnixMilli())
	return NewLimitIOCOrder(marketID, c.wallet.Address(), isBuy, reduceOnly, priceF64, quantityF64, c.leverage, expiration, salt), nil
}

// SignOrder hashes and signs o, returning the hex order hash and the
// transport signature string to submit alongside it.
func (c *Client) SignOrder(o Order) (hashHex, signature string, err error) {
	return c.wallet.SignOrder(o)
}

// PostSignedOrder submits a signed order and returns a structured
// Response rather than a bare error, so callers (hedger, market-maker)
// can feed failures to their circuit breaker without type-asserting.
func (c *Client) PostSignedOrder(ctx context.Context, o Order, signature string) Response {
	token := c.AuthToken()
	if token == "" {
		return Response{Error: fmt.Errorf("postSignedOrder: not onboarded")}
	}

	body := toOrderRequest(o, signature)

	var result struct {
		Hash  string `json:"hash"`
		Error *struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		} `json:"error"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetBody(body).
		SetResult(&result).
		Post("/orders")
	if err != nil {
		return Response{Error: fmt.Errorf("post signed order: %w", err)}
	}
	if resp.StatusCode() != http.StatusOK {
		return Response{Error: fmt.Errorf("post signed order: status %d: %s", resp.StatusCode(), resp.String())}
	}
	if result.Error != nil {
		return Response{Error: fmt.Errorf("venue error %d: %s", result.Error.Code, result.Error.Msg)}
	}
	return Response{OrderHash: result.Hash}
}

type userPositionResponse struct {
	Symbol        string `json:"symbol"`
	Side          bool   `json:"side"`
	AvgEntryPrice string `json:"avgEntryPrice"`
	Quantity      string `json:"quantity"`
	Margin        string `json:"margin"`
	Leverage      string `json:"leverage"`
}

// GetUserPosition fetches the current position on market. Wei-scaled
// string fields are parsed with decimal.Decimal to avoid float rounding
// error before being divided down to human units for Margin/Leverage.
func (c *Client) GetUserPosition(ctx context.Context, market string) (UserPosition, error) {
	var raw userPositionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", market).
		SetResult(&raw).
		Get("/userPosition")
	if err != nil {
		return UserPosition{}, fmt.Errorf("get user position: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return UserPosition{}, fmt.Errorf("get user position: status %d: %s", resp.StatusCode(), resp.String())
	}

	avgEntry, err := decimal.NewFromString(raw.AvgEntryPrice)
	if err != nil {
		return UserPosition{}, fmt.Errorf("parse avgEntryPrice: %w", err)
	}
	qty, err := decimal.NewFromString(raw.Quantity)
	if err != nil {
		return UserPosition{}, fmt.Errorf("parse quantity: %w", err)
	}
	margin, _ := decimal.NewFromString(raw.Margin)
	leverage, _ := decimal.NewFromString(raw.Leverage)

	marginScale := decimal.New(1, 18)
	return UserPosition{
		Symbol:        raw.Symbol,
		Side:          raw.Side,
		AvgEntryPrice: *avgEntry.BigInt(),
		Quantity:      *qty.BigInt(),
		Margin:        margin.Div(marginScale).InexactFloat64(),
		Leverage:      leverage.Div(marginScale).InexactFloat64(),
	}, nil
}
