package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	errx "github.com/walletpilot/server/internal/core/error"
	"github.com/walletpilot/server/internal/wallet"
	logx "github.com/walletpilot/server/pkg/logger"
)

type Config struct {
	BaseURL string `envconfig:"AGGREGATOR_BASE_URL" default:"https://aggregator.walletpilot.dev"`
	Timeout int    `envconfig:"AGGREGATOR_TIMEOUT_SECONDS" default:"15"`
}

// Quote is an aggregator price quote for a sell/buy token pair.
type Quote struct {
	QuoteID    string `json:"quoteId"`
	SellToken  string `json:"sellToken"`
	BuyToken   string `json:"buyToken"`
	SellAmount string `json:"sellAmount"`
	BuyAmount  string `json:"buyAmount"`
	// AllowanceTarget is the spender to approve before a non-native sell.
	AllowanceTarget string `json:"allowanceTarget"`
}

// BuyAmountBase parses the quoted buy amount in smallest units.
func (q *Quote) BuyAmountBase() (*big.Int, error) {
	v, ok := new(big.Int).SetString(q.BuyAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid buy amount in quote: %q", q.BuyAmount)
	}
	return v, nil
}

// SwapOptions controls swap execution.
type SwapOptions struct {
	AutoApprove bool
	SlippageBps int
}

// swapCalldata is the built transaction returned by the aggregator.
type swapCalldata struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

// SwapResult reports a submitted swap.
type SwapResult struct {
	TransactionHash common.Hash
}

// Client talks to the DEX aggregator HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetQuote fetches the best price for selling sellAmount of sellToken into
// buyToken. Token inputs must already be canonical addresses.
func (c *Client) GetQuote(ctx context.Context, sellToken, buyToken string, sellAmount *big.Int) (*Quote, error) {
	params := url.Values{}
	params.Set("sellToken", sellToken)
	params.Set("buyToken", buyToken)
	params.Set("sellAmount", sellAmount.String())

	var q Quote
	if err := c.getJSON(ctx, "/swap/v1/quote?"+params.Encode(), &q); err != nil {
		return nil, err
	}
	if q.QuoteID == "" {
		return nil, errx.WrapAggregator(fmt.Errorf("quote response missing quoteId"))
	}

	logx.Debug().
		Str("quote_id", q.QuoteID).
		Str("sell_token", sellToken).
		Str("buy_token", buyToken).
		Str("sell_amount", sellAmount.String()).
		Str("buy_amount", q.BuyAmount).
		Msg("Aggregator quote fetched")

	return &q, nil
}

// ExecuteSwap builds the calldata for a previously fetched quote and submits
// it through the account. With AutoApprove set, a non-native sell token is
// approved for the allowance target first.
func (c *Client) ExecuteSwap(ctx context.Context, account *wallet.Account, q *Quote, opts SwapOptions) (*SwapResult, error) {
	if q == nil {
		return nil, fmt.Errorf("quote is nil")
	}

	body, err := json.Marshal(map[string]any{
		"quoteId":      q.QuoteID,
		"takerAddress": account.Address().Hex(),
		"slippageBps":  opts.SlippageBps,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal build request: %w", err)
	}

	var built swapCalldata
	if err := c.postJSON(ctx, "/swap/v1/build", body, &built); err != nil {
		return nil, err
	}
	if !common.IsHexAddress(built.To) {
		return nil, errx.WrapAggregator(fmt.Errorf("build response has invalid target %q", built.To))
	}

	if opts.AutoApprove && !strings.EqualFold(q.SellToken, wallet.NativeTokenAddress.Hex()) {
		sellAmount, ok := new(big.Int).SetString(q.SellAmount, 10)
		if !ok {
			return nil, fmt.Errorf("invalid sell amount in quote: %q", q.SellAmount)
		}
		spender := built.To
		if common.IsHexAddress(q.AllowanceTarget) {
			spender = q.AllowanceTarget
		}
		if _, err := account.Approve(ctx, common.HexToAddress(q.SellToken), common.HexToAddress(spender), sellAmount); err != nil {
			return nil, err
		}
	}

	value := new(big.Int)
	if built.Value != "" {
		if _, ok := value.SetString(built.Value, 10); !ok {
			return nil, errx.WrapAggregator(fmt.Errorf("build response has invalid value %q", built.Value))
		}
	}

	hash, err := account.Execute(ctx, common.HexToAddress(built.To), value, common.FromHex(built.Data))
	if err != nil {
		return nil, err
	}

	logx.Info().
		Str("quote_id", q.QuoteID).
		Str("tx", hash.Hex()).
		Msg("Swap submitted")

	return &SwapResult{TransactionHash: hash}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errx.WrapAggregator(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errx.WrapAggregator(fmt.Errorf("aggregator returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errx.WrapAggregator(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
