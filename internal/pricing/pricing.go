package pricing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"chainpay/internal/chain"
)

var ErrUnknownPlan = errors.New("unknown plan")

// Decimals smallest-unit exponent per chain: 1 BTC = 1e8 sat, 1 SOL = 1e9 lamports.
var Decimals = map[chain.Chain]int32{
	chain.BTC: 8,
	chain.SOL: 9,
}

// PriceFeed returns the USD spot price of one coin.
type PriceFeed interface {
	USDPrice(ctx context.Context, c chain.Chain) (decimal.Decimal, error)
}

type Quote struct {
	AmountRaw uint64
	Amount    string // в монетах, для отображения
	USD       decimal.Decimal
	Rate      decimal.Decimal
}

// Service переводит цену плана в USD в сумму в сатоши/лампортах
type Service struct {
	feed   PriceFeed
	prices PlanPrices
}

func NewService(feed PriceFeed, prices PlanPrices) *Service {
	return &Service{feed: feed, prices: prices}
}

func (s *Service) Quote(ctx context.Context, c chain.Chain, plan string) (*Quote, error) {
	usd, ok := s.prices[strings.ToUpper(plan)]
	if !ok {
		return nil, ErrUnknownPlan
	}

	rate, err := s.feed.USDPrice(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s price: %w", c, err)
	}

	raw, err := ToRawUnits(usd, rate, c)
	if err != nil {
		return nil, err
	}

	return &Quote{
		AmountRaw: raw,
		Amount:    FormatRaw(raw, c),
		USD:       usd,
		Rate:      rate,
	}, nil
}

// ToRawUnits converts usd at rate USD/coin into smallest units, rounding up
// so the quote never undershoots the plan price.
func ToRawUnits(usd, rate decimal.Decimal, c chain.Chain) (uint64, error) {
	decimals, ok := Decimals[c]
	if !ok {
		return 0, fmt.Errorf("unsupported chain %q", c)
	}
	if !rate.IsPositive() {
		return 0, fmt.Errorf("invalid %s rate %s", c, rate)
	}

	raw := usd.Div(rate).Shift(decimals).Ceil()
	if !raw.IsPositive() {
		return 0, fmt.Errorf("amount for %s USD is not positive", usd)
	}
	return uint64(raw.IntPart()), nil
}

func FormatRaw(raw uint64, c chain.Chain) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -Decimals[c]).String()
}

// PlanPrices цена плана в USD
type PlanPrices map[string]decimal.Decimal

// ParsePlanPrices parses "PRO=19.99,ELITE=49.99".
func ParsePlanPrices(s string) (PlanPrices, error) {
	prices := make(PlanPrices)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid plan price %q", pair)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid price for plan %s: %w", name, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("price for plan %s must be positive", name)
		}
		prices[strings.ToUpper(strings.TrimSpace(name))] = price
	}
	if len(prices) == 0 {
		return nil, errors.New("no plan prices configured")
	}
	return prices, nil
}

func (p PlanPrices) Has(plan string) bool {
	_, ok := p[strings.ToUpper(plan)]
	return ok
}
