package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
)

// JupiterQuoter fetches candidate routes from a Jupiter-style quote API.
type JupiterQuoter struct {
	baseURL string
	http    *http.Client
}

func NewJupiterQuoter(baseURL string, timeout time.Duration) *JupiterQuoter {
	return &JupiterQuoter{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type jupiterQuoteResponse struct {
	Data []jupiterRoute `json:"data"`
}

type jupiterRoute struct {
	InAmount    string              `json:"inAmount"`
	OutAmount   string              `json:"outAmount"`
	MarketInfos []jupiterMarketInfo `json:"marketInfos"`
}

type jupiterMarketInfo struct {
	ID                 string `json:"id"`
	Label              string `json:"label"`
	InputMint          string `json:"inputMint"`
	OutputMint         string `json:"outputMint"`
	InAmount           string `json:"inAmount"`
	OutAmount          string `json:"outAmount"`
	NotEnoughLiquidity bool   `json:"notEnoughLiquidity"`
}

// Quote performs a GET against the quote endpoint and filters out routes that
// touch an excluded venue. The API has no server-side venue exclusion, so the
// filter runs here.
func (j *JupiterQuoter) Quote(ctx context.Context, req QuoteRequest) ([]Route, error) {
	query := url.Values{}
	query.Set("inputMint", req.InputMint.String())
	query.Set("outputMint", req.OutputMint.String())
	query.Set("amount", strconv.FormatUint(req.Amount, 10))
	if req.SlippageBps > 0 {
		query.Set("slippageBps", strconv.FormatUint(req.SlippageBps, 10))
	}
	if req.OnlyDirectRoutes {
		query.Set("onlyDirectRoutes", "true")
	}

	endpoint := j.baseURL + "/quote?" + query.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build quote request: %w", err)
	}

	resp, err := j.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote request: unexpected status %d", resp.StatusCode)
	}

	var payload jupiterQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode quote response: %w", err)
	}

	excluded := make(map[string]struct{}, len(req.ExcludedVenues))
	for _, venue := range req.ExcludedVenues {
		excluded[venue] = struct{}{}
	}

	routes := make([]Route, 0, len(payload.Data))
	for _, raw := range payload.Data {
		route, ok, err := convertRoute(raw, excluded)
		if err != nil {
			return nil, err
		}
		if ok {
			routes = append(routes, route)
		}
	}
	return routes, nil
}

func convertRoute(raw jupiterRoute, excluded map[string]struct{}) (Route, bool, error) {
	inAmount, err := parseAmount(raw.InAmount)
	if err != nil {
		return Route{}, false, fmt.Errorf("route inAmount: %w", err)
	}
	outAmount, err := parseAmount(raw.OutAmount)
	if err != nil {
		return Route{}, false, fmt.Errorf("route outAmount: %w", err)
	}

	legs := make([]LegQuote, 0, len(raw.MarketInfos))
	for _, info := range raw.MarketInfos {
		if _, skip := excluded[info.Label]; skip {
			return Route{}, false, nil
		}
		marketID, err := solana.PublicKeyFromBase58(info.ID)
		if err != nil {
			return Route{}, false, fmt.Errorf("leg market id %q: %w", info.ID, err)
		}
		inputMint, err := solana.PublicKeyFromBase58(info.InputMint)
		if err != nil {
			return Route{}, false, fmt.Errorf("leg input mint %q: %w", info.InputMint, err)
		}
		outputMint, err := solana.PublicKeyFromBase58(info.OutputMint)
		if err != nil {
			return Route{}, false, fmt.Errorf("leg output mint %q: %w", info.OutputMint, err)
		}
		legIn, err := parseAmount(info.InAmount)
		if err != nil {
			return Route{}, false, fmt.Errorf("leg inAmount: %w", err)
		}
		legOut, err := parseAmount(info.OutAmount)
		if err != nil {
			return Route{}, false, fmt.Errorf("leg outAmount: %w", err)
		}
		legs = append(legs, LegQuote{
			MarketID:           marketID,
			Venue:              info.Label,
			InputMint:          inputMint,
			OutputMint:         outputMint,
			InAmount:           legIn,
			OutAmount:          legOut,
			NotEnoughLiquidity: info.NotEnoughLiquidity,
		})
	}

	return Route{InAmount: inAmount, OutAmount: outAmount, Legs: legs}, true, nil
}

func parseAmount(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
