package pricing

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"chainpay/internal/chain"
)

var symbols = map[chain.Chain]string{
	chain.BTC: "BTCUSDT",
	chain.SOL: "SOLUSDT",
}

// BinanceFeed spot ticker price feed, public endpoint, no API keys needed.
type BinanceFeed struct {
	client *binance.Client
}

func NewBinanceFeed(baseURL string) *BinanceFeed {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &BinanceFeed{client: client}
}

func (f *BinanceFeed) USDPrice(ctx context.Context, c chain.Chain) (decimal.Decimal, error) {
	symbol, ok := symbols[c]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price symbol for chain %q", c)
	}

	prices, err := f.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance ticker %s: %w", symbol, err)
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			return decimal.NewFromString(p.Price)
		}
	}
	return decimal.Zero, fmt.Errorf("binance ticker %s: no price returned", symbol)
}
