package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"fundarb-go/internal/venue"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("key", "secret", srv.URL)
}

func TestFundingRate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/premiumIndex" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "ALPACAUSDT" {
			t.Errorf("symbol = %q", got)
		}
		w.Write([]byte(`{"symbol":"ALPACAUSDT","markPrice":"100.1","lastFundingRate":"0.0001","nextFundingTime":1756600000000}`))
	})
	rate, err := c.FundingRate(context.Background(), "ALPACA/USDT:USDT")
	if err != nil {
		t.Fatalf("FundingRate: %v", err)
	}
	if rate != 0.0001 {
		t.Fatalf("rate = %v, want 0.0001", rate)
	}
}

func TestFetchOrderBook(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("limit = %q", got)
		}
		w.Write([]byte(`{"asks":[["100.5","4"],["101","2"]],"bids":[["100","6"]]}`))
	})
	bk, err := c.FetchOrderBook(context.Background(), "ALPACAUSDT", 0)
	if err != nil {
		t.Fatalf("FetchOrderBook: %v", err)
	}
	if len(bk.Asks) != 2 || bk.Asks[0].Price != 100.5 || bk.Asks[0].Amount != 4 {
		t.Fatalf("asks = %+v", bk.Asks)
	}
}

func TestMarketLimits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("signature") == "" || r.Header.Get("X-MBX-APIKEY") != "key" {
			t.Error("leverageBracket must be signed")
		}
		w.Write([]byte(`[{"symbol":"ALPACAUSDT","brackets":[{"bracket":1,"initialLeverage":25},{"bracket":2,"initialLeverage":10}]}]`))
	})
	lim, err := c.MarketLimits(context.Background(), "ALPACAUSDT")
	if err != nil {
		t.Fatalf("MarketLimits: %v", err)
	}
	if lim.MaxLeverage != 25 {
		t.Fatalf("MaxLeverage = %d, want 25", lim.MaxLeverage)
	}
}

func TestSetLeverageReasonMapping(t *testing.T) {
	cases := []struct {
		name string
		body string
		want venue.RejectReason
	}{
		{"invalid code", `{"code":-4028,"msg":"Leverage 100 is not valid"}`, venue.ReasonInvalidValue},
		{"no need to change", `{"code":-4046,"msg":"No need to change margin type."}`, venue.ReasonNotModified},
		{"other", `{"code":-1000,"msg":"An unknown error occurred"}`, venue.ReasonOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(tc.body))
			})
			err := c.SetLeverage(context.Background(), 100, "ALPACAUSDT")
			le, ok := venue.AsLeverageError(err)
			if !ok {
				t.Fatalf("err = %v, want LeverageError", err)
			}
			if le.Reason != tc.want {
				t.Fatalf("reason = %s, want %s", le.Reason, tc.want)
			}
		})
	}
}

func TestSetLeverageSuccess(t *testing.T) {
	var query url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write([]byte(`{"leverage":10,"symbol":"ALPACAUSDT"}`))
	})
	if err := c.SetLeverage(context.Background(), 10, "ALPACAUSDT"); err != nil {
		t.Fatalf("SetLeverage: %v", err)
	}
	if query.Get("leverage") != "10" || query.Get("timestamp") == "" || query.Get("signature") == "" {
		t.Fatalf("query = %v", query)
	}
}

func TestEnableHedgeMode(t *testing.T) {
	t.Run("fresh enable", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("dualSidePosition") != "true" {
				t.Errorf("dualSidePosition = %q", r.URL.Query().Get("dualSidePosition"))
			}
			w.Write([]byte(`{"code":200,"msg":"success"}`))
		})
		if err := c.EnableHedgeMode(context.Background()); err != nil {
			t.Fatalf("EnableHedgeMode: %v", err)
		}
	})
	t.Run("already enabled", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":-4059,"msg":"No need to change position side."}`))
		})
		if err := c.EnableHedgeMode(context.Background()); err != nil {
			t.Fatalf("already-enabled should be treated as success, got %v", err)
		}
	})
}

func TestPlaceMarketOrder(t *testing.T) {
	var query url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write([]byte(`{"orderId":123456,"clientOrderId":"cli-1"}`))
	})
	ref, err := c.PlaceMarketOrder(context.Background(), "ALPACAUSDT", venue.Sell, 9.96, &venue.OrderOptions{
		PositionSide:  venue.PositionShort,
		ClientOrderID: "cli-1",
	})
	if err != nil {
		t.Fatalf("PlaceMarketOrder: %v", err)
	}
	if ref.ID != "123456" || ref.ClientOrderID != "cli-1" {
		t.Fatalf("ref = %+v", ref)
	}
	if query.Get("type") != "MARKET" || query.Get("side") != "SELL" {
		t.Fatalf("query = %v", query)
	}
	if query.Get("quantity") != "9.96" || query.Get("positionSide") != "SHORT" {
		t.Fatalf("query = %v", query)
	}
}

func TestPlaceBracketOrderClosePosition(t *testing.T) {
	var query url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write([]byte(`{"orderId":7,"clientOrderId":"x"}`))
	})
	opts := &venue.OrderOptions{
		PositionSide:  venue.PositionShort,
		Bracket:       venue.BracketTakeProfit,
		StopPrice:     99,
		Trigger:       venue.TriggerBelow,
		ClosePosition: true,
	}
	if _, err := c.PlaceMarketOrder(context.Background(), "ALPACAUSDT", venue.Buy, 9.96, opts); err != nil {
		t.Fatalf("PlaceMarketOrder: %v", err)
	}
	if query.Get("type") != "TAKE_PROFIT_MARKET" || query.Get("stopPrice") != "99" {
		t.Fatalf("query = %v", query)
	}
	if query.Get("closePosition") != "true" {
		t.Fatalf("closePosition = %q", query.Get("closePosition"))
	}
	if query.Get("quantity") != "" {
		t.Fatal("closePosition orders must omit quantity")
	}
}

func TestOpenPositions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"ALPACAUSDT","positionAmt":"-9.96","positionSide":"SHORT"},{"symbol":"ALPACAUSDT","positionAmt":"0","positionSide":"LONG"},{"symbol":"ALPACAUSDT","positionAmt":"-1.5","positionSide":"BOTH"}]`))
	})
	positions, err := c.OpenPositions(context.Background(), "ALPACAUSDT")
	if err != nil {
		t.Fatalf("OpenPositions: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("positions = %d, want 2", len(positions))
	}
	if positions[0].Side != venue.PositionShort || positions[0].Quantity != 9.96 {
		t.Fatalf("positions[0] = %+v", positions[0])
	}
	if positions[1].Side != venue.PositionShort || positions[1].Quantity != 1.5 {
		t.Fatalf("one-way short should map by sign, got %+v", positions[1])
	}
}
