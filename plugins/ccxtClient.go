package plugins

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stellar/kelp/api"
)

// ccxtPrecision is the display precision applied to values read back from the ccxt-rest bridge;
// it mirrors the SDEX-facing precision constant the teacher keeps alongside its other exchange
// adapters.
const ccxtPrecision int8 = 7

// ccxtOrder is a single price/amount level as returned by the ccxt-rest order book endpoint.
type ccxtOrder struct {
	Price  float64
	Amount float64
}

// ccxtTrade is a single historical trade as returned by the ccxt-rest trades endpoint.
type ccxtTrade struct {
	ID        string
	Symbol    string
	Side      string
	Price     float64
	Amount    float64
	Cost      float64
	Timestamp int64
}

// ccxtOpenOrder is a resting order as returned by the ccxt-rest open-orders endpoint.
type ccxtOpenOrder struct {
	ID        string
	Symbol    string
	Side      string
	Type      string
	Price     float64
	Amount    float64
	Filled    float64
	Timestamp int64
}

// ccxtBalanceEntry is a single asset's balance as returned by the ccxt-rest balance endpoint.
type ccxtBalanceEntry struct {
	Free  float64
	Used  float64
	Total float64
}

// ccxtClient is a minimal HTTP client for the ccxt-rest bridge (https://github.com/franz-see/ccxt-rest,
// https://github.com/ccxt/ccxt/); it exists so ccxtExchange has no dependency outside the standard
// library for wire transport, since BRM's external interfaces own no wire protocol of their own
// (spec.md §6).
type ccxtClient struct {
	baseURL      string
	exchangeName string
	apiKey       api.ExchangeAPIKey
	httpClient   *http.Client
}

// makeInitializedCcxtClient is a factory method; it performs no network I/O itself.
func makeInitializedCcxtClient(baseURL string, exchangeName string, apiKey api.ExchangeAPIKey) (*ccxtClient, error) {
	if exchangeName == "" {
		return nil, fmt.Errorf("exchangeName cannot be empty")
	}
	return &ccxtClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		exchangeName: exchangeName,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *ccxtClient) get(path string, query url.Values, out interface{}) error {
	u := fmt.Sprintf("%s/%s/%s", c.baseURL, c.exchangeName, path)
	if len(query) > 0 {
		u = u + "?" + query.Encode()
	}

	req, e := http.NewRequest(http.MethodGet, u, nil)
	if e != nil {
		return fmt.Errorf("could not build ccxt-rest request for %s: %s", path, e)
	}
	return c.do(req, out)
}

func (c *ccxtClient) post(path string, body interface{}, out interface{}) error {
	payload, e := json.Marshal(body)
	if e != nil {
		return fmt.Errorf("could not marshal ccxt-rest request body for %s: %s", path, e)
	}

	u := fmt.Sprintf("%s/%s/%s", c.baseURL, c.exchangeName, path)
	req, e := http.NewRequest(http.MethodPost, u, bytes.NewReader(payload))
	if e != nil {
		return fmt.Errorf("could not build ccxt-rest request for %s: %s", path, e)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *ccxtClient) do(req *http.Request, out interface{}) error {
	resp, e := c.httpClient.Do(req)
	if e != nil {
		return fmt.Errorf("ccxt-rest request to %s failed: %s", req.URL, e)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ccxt-rest request to %s returned status %d", req.URL, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FetchTicker fetches the raw ticker map for a symbol (kept as a raw map, matching ccxt-rest's
// untyped JSON response).
func (c *ccxtClient) FetchTicker(symbol string) (map[string]interface{}, error) {
	var out map[string]interface{}
	e := c.get("ticker/"+url.PathEscape(symbol), nil, &out)
	return out, e
}

// FetchBalance fetches the account's balances, keyed by asset code.
func (c *ccxtClient) FetchBalance() (map[string]ccxtBalanceEntry, error) {
	var out map[string]ccxtBalanceEntry
	e := c.get("balance", url.Values{"apiKey": {c.apiKey.Key}, "secret": {c.apiKey.Secret}}, &out)
	return out, e
}

// FetchOrderBook fetches the order book for a symbol.
func (c *ccxtClient) FetchOrderBook(symbol string, limit *int) (map[string][]ccxtOrder, error) {
	query := url.Values{}
	if limit != nil {
		query.Set("limit", fmt.Sprintf("%d", *limit))
	}
	var out map[string][]ccxtOrder
	e := c.get("orderbook/"+url.PathEscape(symbol), query, &out)
	return out, e
}

// FetchTrades fetches the most recent public trades for a symbol.
func (c *ccxtClient) FetchTrades(symbol string) ([]ccxtTrade, error) {
	var out []ccxtTrade
	e := c.get("trades/"+url.PathEscape(symbol), nil, &out)
	return out, e
}

// FetchOpenOrders fetches resting orders for the given symbols, keyed by symbol.
func (c *ccxtClient) FetchOpenOrders(symbols []string) (map[string][]ccxtOpenOrder, error) {
	var out map[string][]ccxtOpenOrder
	e := c.get("openOrders", url.Values{"symbols": symbols}, &out)
	return out, e
}

// CreateLimitOrder places a limit order and returns the resulting open order.
func (c *ccxtClient) CreateLimitOrder(symbol string, side string, amount float64, price float64) (*ccxtOpenOrder, error) {
	body := map[string]interface{}{
		"symbol": symbol,
		"side":   side,
		"type":   "limit",
		"amount": amount,
		"price":  price,
	}
	var out ccxtOpenOrder
	e := c.post("order", body, &out)
	return &out, e
}

// checkFetchFloat reads a float64-convertible value out of a raw ccxt-rest JSON map.
func checkFetchFloat(m map[string]interface{}, key string) (float64, error) {
	raw, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("field '%s' was not present in response", key)
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("field '%s' was not a number, got %T", key, raw)
	}
	return f, nil
}
