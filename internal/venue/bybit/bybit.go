// Package bybit implements the venue connector against the Bybit v5 REST
// API for linear USDT perpetuals.
package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"fundarb-go/internal/venue"
)

const (
	defaultBaseURL   = "https://api.bybit.com"
	category         = "linear"
	recvWindowMillis = 5000
)

// Client is a Bybit v5 connector. It is safe for sequential use; the
// executor never issues concurrent calls.
type Client struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	recvWindow int64
	hc         *http.Client
}

// New builds a client; an empty baseURL falls back to the production host.
func New(apiKey, apiSecret, baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    strings.TrimRight(baseURL, "/"),
		recvWindow: recvWindowMillis,
		hc:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Name() string { return "bybit" }

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

type apiError struct {
	Code int
	Msg  string
	Path string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("bybit %s: retCode %d: %s", e.Path, e.Code, e.Msg)
}

// sign computes the v5 request signature over
// timestamp + apiKey + recvWindow + payload.
func (c *Client) sign(ts, payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	_, _ = io.WriteString(mac, ts+c.apiKey+strconv.FormatInt(c.recvWindow, 10)+payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) auth(req *http.Request, payload string) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.FormatInt(c.recvWindow, 10))
	req.Header.Set("X-BAPI-SIGN", c.sign(ts, payload))
}

func (c *Client) get(ctx context.Context, path string, q url.Values, signed bool) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if signed {
		c.auth(req, q.Encode())
	}
	return c.do(req, path)
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req, string(data))
	return c.do(req, path)
}

func (c *Client) do(req *http.Request, path string) (json.RawMessage, error) {
	res, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	bs, _ := io.ReadAll(res.Body)
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("bybit %s: http %d: %s", path, res.StatusCode, string(bs))
	}
	var env envelope
	if err := json.Unmarshal(bs, &env); err != nil {
		return nil, fmt.Errorf("bybit %s: decode: %w", path, err)
	}
	if env.RetCode != 0 {
		return nil, &apiError{Code: env.RetCode, Msg: env.RetMsg, Path: path}
	}
	return env.Result, nil
}

func (c *Client) FundingRate(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", venue.PerpSymbol(symbol))
	raw, err := c.get(ctx, "/v5/market/tickers", q, false)
	if err != nil {
		return 0, err
	}
	var out struct {
		List []struct {
			FundingRate string `json:"fundingRate"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, err
	}
	if len(out.List) == 0 {
		return 0, fmt.Errorf("bybit tickers: symbol %s not found", symbol)
	}
	return strconv.ParseFloat(out.List[0].FundingRate, 64)
}

func (c *Client) FetchOrderBook(ctx context.Context, symbol string, depth int) (*venue.OrderBook, error) {
	if depth <= 0 {
		depth = 20
	}
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", venue.PerpSymbol(symbol))
	q.Set("limit", strconv.Itoa(depth))
	raw, err := c.get(ctx, "/v5/market/orderbook", q, false)
	if err != nil {
		return nil, err
	}
	var out struct {
		Asks [][]string `json:"a"`
		Bids [][]string `json:"b"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &venue.OrderBook{Symbol: symbol, Asks: toLevels(out.Asks), Bids: toLevels(out.Bids)}, nil
}

func toLevels(rows [][]string) []venue.BookLevel {
	out := make([]venue.BookLevel, 0, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		price, _ := strconv.ParseFloat(r[0], 64)
		amount, _ := strconv.ParseFloat(r[1], 64)
		out = append(out, venue.BookLevel{Price: price, Amount: amount})
	}
	return out
}

func (c *Client) MarketLimits(ctx context.Context, symbol string) (venue.MarketLimits, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", venue.PerpSymbol(symbol))
	raw, err := c.get(ctx, "/v5/market/instruments-info", q, false)
	if err != nil {
		return venue.MarketLimits{}, err
	}
	var out struct {
		List []struct {
			LeverageFilter struct {
				MaxLeverage string `json:"maxLeverage"`
			} `json:"leverageFilter"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return venue.MarketLimits{}, err
	}
	if len(out.List) == 0 {
		return venue.MarketLimits{}, nil
	}
	maxLev, _ := strconv.ParseFloat(out.List[0].LeverageFilter.MaxLeverage, 64)
	return venue.MarketLimits{MaxLeverage: int(maxLev)}, nil
}

func (c *Client) SetLeverage(ctx context.Context, value int, symbol string) error {
	lev := strconv.Itoa(value)
	_, err := c.post(ctx, "/v5/position/set-leverage", map[string]any{
		"category":     category,
		"symbol":       venue.PerpSymbol(symbol),
		"buyLeverage":  lev,
		"sellLeverage": lev,
	})
	if err == nil {
		return nil
	}
	var ae *apiError
	if errors.As(err, &ae) {
		return &venue.LeverageError{Venue: c.Name(), Value: value, Reason: reasonForCode(ae.Code, ae.Msg), Msg: ae.Msg}
	}
	return err
}

// reasonForCode classifies a set-leverage rejection. 110043 is Bybit's
// benign "leverage not modified"; 110013 covers out-of-range values.
func reasonForCode(code int, msg string) venue.RejectReason {
	switch code {
	case 110043:
		return venue.ReasonNotModified
	case 110013:
		return venue.ReasonInvalidValue
	}
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "not modified"):
		return venue.ReasonNotModified
	case strings.Contains(m, "not valid"), strings.Contains(m, "invalid"):
		return venue.ReasonInvalidValue
	}
	return venue.ReasonOther
}

func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side venue.Side, qty float64, opts *venue.OrderOptions) (*venue.OrderRef, error) {
	if opts == nil {
		opts = &venue.OrderOptions{}
	}
	linkID := opts.ClientOrderID
	if linkID == "" {
		linkID = uuid.NewString()
	}
	body := map[string]any{
		"category":    category,
		"symbol":      venue.PerpSymbol(symbol),
		"side":        sideString(side),
		"orderType":   "Market",
		"qty":         strconv.FormatFloat(qty, 'f', -1, 64),
		"orderLinkId": linkID,
	}
	if opts.Bracket != venue.BracketNone {
		body["triggerPrice"] = strconv.FormatFloat(opts.StopPrice, 'f', -1, 64)
		body["triggerDirection"] = triggerCode(opts.Trigger)
		body["reduceOnly"] = true
		if opts.ClosePosition {
			body["closeOnTrigger"] = true
		}
	}

	raw, err := c.post(ctx, "/v5/order/create", body)
	if err != nil {
		return nil, err
	}
	var out struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &venue.OrderRef{
		ID:            out.OrderID,
		ClientOrderID: out.OrderLinkID,
		Venue:         c.Name(),
		Symbol:        symbol,
		Side:          side,
		Quantity:      qty,
		CreateTime:    time.Now().UTC(),
	}, nil
}

func sideString(s venue.Side) string {
	if s == venue.Sell {
		return "Sell"
	}
	return "Buy"
}

// triggerCode maps to Bybit's triggerDirection: 1 fires when price rises to
// the trigger, 2 when it falls.
func triggerCode(t venue.TriggerDirection) int {
	if t == venue.TriggerBelow {
		return 2
	}
	return 1
}

func (c *Client) OpenPositions(ctx context.Context, symbol string) ([]venue.Position, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", venue.PerpSymbol(symbol))
	raw, err := c.get(ctx, "/v5/position/list", q, true)
	if err != nil {
		return nil, err
	}
	var out struct {
		List []struct {
			Side string `json:"side"`
			Size string `json:"size"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	positions := make([]venue.Position, 0, len(out.List))
	for _, p := range out.List {
		size, _ := strconv.ParseFloat(p.Size, 64)
		if size <= 0 {
			continue
		}
		ps := venue.PositionLong
		if strings.EqualFold(p.Side, "Sell") {
			ps = venue.PositionShort
		}
		positions = append(positions, venue.Position{Symbol: symbol, Quantity: size, Side: ps})
	}
	return positions, nil
}
