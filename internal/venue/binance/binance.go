// Package binance implements the venue connector against Binance USDT-M
// futures (fapi). Signed endpoints carry an HMAC-SHA256 signature over the
// query string plus the X-MBX-APIKEY header.
package binance

import (
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

const defaultBaseURL = "https://fapi.binance.com"

type Client struct {
	apiKey    string
	apiSecret string
	baseURL   string
	hc        *http.Client
}

func New(apiKey, apiSecret, baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		hc:        &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Name() string { return "binance" }

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Path string `json:"-"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("binance %s: code %d: %s", e.Path, e.Code, e.Msg)
}

func (c *Client) signQuery(q url.Values) string {
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	q.Set("recvWindow", "5000")
	encoded := q.Encode()
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	_, _ = io.WriteString(mac, encoded)
	return encoded + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) request(ctx context.Context, method, path string, q url.Values, signed bool) ([]byte, error) {
	if q == nil {
		q = url.Values{}
	}
	query := q.Encode()
	if signed {
		query = c.signQuery(q)
	}
	u := c.baseURL + path
	if query != "" {
		u += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}
	res, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	bs, _ := io.ReadAll(res.Body)
	if res.StatusCode/100 != 2 {
		var ae apiError
		if json.Unmarshal(bs, &ae) == nil && ae.Code != 0 {
			ae.Path = path
			return nil, &ae
		}
		return nil, fmt.Errorf("binance %s: http %d: %s", path, res.StatusCode, string(bs))
	}
	return bs, nil
}

func (c *Client) FundingRate(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("symbol", venue.PerpSymbol(symbol))
	bs, err := c.request(ctx, http.MethodGet, "/fapi/v1/premiumIndex", q, false)
	if err != nil {
		return 0, err
	}
	var out struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	if err := json.Unmarshal(bs, &out); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(out.LastFundingRate, 64)
}

func (c *Client) FetchOrderBook(ctx context.Context, symbol string, depth int) (*venue.OrderBook, error) {
	if depth <= 0 {
		depth = 20
	}
	q := url.Values{}
	q.Set("symbol", venue.PerpSymbol(symbol))
	q.Set("limit", strconv.Itoa(depth))
	bs, err := c.request(ctx, http.MethodGet, "/fapi/v1/depth", q, false)
	if err != nil {
		return nil, err
	}
	var out struct {
		Asks [][]string `json:"asks"`
		Bids [][]string `json:"bids"`
	}
	if err := json.Unmarshal(bs, &out); err != nil {
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
	q.Set("symbol", venue.PerpSymbol(symbol))
	bs, err := c.request(ctx, http.MethodGet, "/fapi/v1/leverageBracket", q, true)
	if err != nil {
		return venue.MarketLimits{}, err
	}
	var out []struct {
		Brackets []struct {
			InitialLeverage int `json:"initialLeverage"`
		} `json:"brackets"`
	}
	if err := json.Unmarshal(bs, &out); err != nil {
		return venue.MarketLimits{}, err
	}
	maxLev := 0
	for _, sym := range out {
		for _, b := range sym.Brackets {
			if b.InitialLeverage > maxLev {
				maxLev = b.InitialLeverage
			}
		}
	}
	return venue.MarketLimits{MaxLeverage: maxLev}, nil
}

func (c *Client) SetLeverage(ctx context.Context, value int, symbol string) error {
	q := url.Values{}
	q.Set("symbol", venue.PerpSymbol(symbol))
	q.Set("leverage", strconv.Itoa(value))
	_, err := c.request(ctx, http.MethodPost, "/fapi/v1/leverage", q, true)
	if err == nil {
		return nil
	}
	var ae *apiError
	if errors.As(err, &ae) {
		return &venue.LeverageError{Venue: c.Name(), Value: value, Reason: reasonForCode(ae.Code, ae.Msg), Msg: ae.Msg}
	}
	return err
}

// reasonForCode classifies a leverage rejection. -4028 is Binance's
// out-of-range leverage code; "no need to change" responses are benign.
func reasonForCode(code int, msg string) venue.RejectReason {
	if code == -4028 {
		return venue.ReasonInvalidValue
	}
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "no need to change"), strings.Contains(m, "not modified"):
		return venue.ReasonNotModified
	case strings.Contains(m, "invalid"):
		return venue.ReasonInvalidValue
	}
	return venue.ReasonOther
}

// EnableHedgeMode switches the account to dual-side position mode so long
// and short legs can coexist on one symbol. Already-enabled (-4059) counts
// as success.
func (c *Client) EnableHedgeMode(ctx context.Context) error {
	q := url.Values{}
	q.Set("dualSidePosition", "true")
	_, err := c.request(ctx, http.MethodPost, "/fapi/v1/positionSide/dual", q, true)
	if err == nil {
		return nil
	}
	var ae *apiError
	if errors.As(err, &ae) && ae.Code == -4059 {
		return nil
	}
	return err
}

func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side venue.Side, qty float64, opts *venue.OrderOptions) (*venue.OrderRef, error) {
	if opts == nil {
		opts = &venue.OrderOptions{}
	}
	clientID := opts.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	q := url.Values{}
	q.Set("symbol", venue.PerpSymbol(symbol))
	q.Set("side", string(side))
	q.Set("newClientOrderId", clientID)
	switch opts.Bracket {
	case venue.BracketNone:
		q.Set("type", "MARKET")
	default:
		q.Set("type", string(opts.Bracket))
		q.Set("stopPrice", strconv.FormatFloat(opts.StopPrice, 'f', -1, 64))
	}
	if opts.PositionSide != "" && opts.PositionSide != venue.PositionBoth {
		q.Set("positionSide", string(opts.PositionSide))
	}
	if opts.ClosePosition {
		q.Set("closePosition", "true")
	} else {
		q.Set("quantity", strconv.FormatFloat(qty, 'f', -1, 64))
	}

	bs, err := c.request(ctx, http.MethodPost, "/fapi/v1/order", q, true)
	if err != nil {
		return nil, err
	}
	var out struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
	}
	if err := json.Unmarshal(bs, &out); err != nil {
		return nil, err
	}
	return &venue.OrderRef{
		ID:            strconv.FormatInt(out.OrderID, 10),
		ClientOrderID: out.ClientOrderID,
		Venue:         c.Name(),
		Symbol:        symbol,
		Side:          side,
		Quantity:      qty,
		CreateTime:    time.Now().UTC(),
	}, nil
}

func (c *Client) OpenPositions(ctx context.Context, symbol string) ([]venue.Position, error) {
	q := url.Values{}
	q.Set("symbol", venue.PerpSymbol(symbol))
	bs, err := c.request(ctx, http.MethodGet, "/fapi/v2/positionRisk", q, true)
	if err != nil {
		return nil, err
	}
	var out []struct {
		PositionAmt  string `json:"positionAmt"`
		PositionSide string `json:"positionSide"`
	}
	if err := json.Unmarshal(bs, &out); err != nil {
		return nil, err
	}
	positions := make([]venue.Position, 0, len(out))
	for _, p := range out {
		amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		var side venue.PositionSide
		switch strings.ToUpper(p.PositionSide) {
		case "LONG":
			side = venue.PositionLong
		case "SHORT":
			side = venue.PositionShort
		default:
			side = venue.PositionLong
			if amt < 0 {
				side = venue.PositionShort
			}
		}
		qty := amt
		if qty < 0 {
			qty = -qty
		}
		positions = append(positions, venue.Position{Symbol: symbol, Quantity: qty, Side: side})
	}
	return positions, nil
}
