package venues

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"settlenet/native/broker"
)

var _ broker.VenueAdapter = (*HTTPVenue)(nil)

// HTTPVenue routes quotes and executions to an external venue over its JSON
// API. Amounts travel as base-10 strings so arbitrary precision survives the
// wire.
type HTTPVenue struct {
	name    string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewHTTP creates an adapter for the venue reachable at baseURL.
func NewHTTP(name, baseURL string, log *slog.Logger) *HTTPVenue {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPVenue{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type venueRequest struct {
	AssetIn      string `json:"assetIn"`
	AmountIn     string `json:"amountIn"`
	AssetOut     string `json:"assetOut"`
	MinAmountOut string `json:"minAmountOut,omitempty"`
	Data         string `json:"data,omitempty"`
}

type venueResponse struct {
	AmountOut string `json:"amountOut"`
	Error     string `json:"error"`
}

// Quote asks the venue how much assetOut it would return for amountIn of
// assetIn.
func (v *HTTPVenue) Quote(assetIn string, amountIn *big.Int, assetOut string) (*big.Int, error) {
	return v.post("/quote", venueRequest{
		AssetIn:  assetIn,
		AmountIn: amountIn.String(),
		AssetOut: assetOut,
	})
}

// Execute trades amountIn of assetIn for assetOut and returns the amount the
// venue reports as received.
func (v *HTTPVenue) Execute(assetIn string, amountIn *big.Int, assetOut string, minAmountOut *big.Int, data []byte) (*big.Int, error) {
	return v.post("/execute", venueRequest{
		AssetIn:      assetIn,
		AmountIn:     amountIn.String(),
		AssetOut:     assetOut,
		MinAmountOut: minAmountOut.String(),
		Data:         hex.EncodeToString(data),
	})
}

func (v *HTTPVenue) post(path string, req venueRequest) (*big.Int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("venues: encode request: %w", err)
	}
	v.log.Debug("Venue call", slog.String("venue", v.name), slog.String("path", path))
	resp, err := v.client.Post(v.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("venues: %s: %w", v.name, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("venues: %s: read response: %w", v.name, err)
	}
	var out venueResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("venues: %s: decode response: %w", v.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != "" {
			return nil, fmt.Errorf("venues: %s: %s", v.name, out.Error)
		}
		return nil, fmt.Errorf("venues: %s: status %d", v.name, resp.StatusCode)
	}
	amount, ok := new(big.Int).SetString(out.AmountOut, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("venues: %s: invalid amount %q", v.name, out.AmountOut)
	}
	return amount, nil
}
