package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/elliotchance/pie/v2"

	"udon-bot/internal/domain"
	"udon-bot/internal/observability/metrics"
)

// searchResultCap approximates "every result" for one large area.
const searchResultCap = 500

// chainBlacklist lists chain brands excluded from recommendations.
var chainBlacklist = []string{"こがね製麺", "はなまるうどん"}

type ShopSearcher interface {
	Search(ctx context.Context, areaCode, keyword string, count int) ([]domain.Shop, error)
}

// ShopPicker selects one random non-chain shop from a search.
type ShopPicker struct {
	searcher  ShopSearcher
	intn      func(n int) int
	blacklist []string
	metrics   *metrics.BotMetrics
}

type ShopPickerOption func(*ShopPicker)

// WithRandom replaces the uniform random source. intn must return a value in [0, n).
func WithRandom(intn func(n int) int) ShopPickerOption {
	return func(p *ShopPicker) {
		if intn != nil {
			p.intn = intn
		}
	}
}

func WithPickerMetrics(m *metrics.BotMetrics) ShopPickerOption {
	return func(p *ShopPicker) {
		p.metrics = m
	}
}

func NewShopPicker(searcher ShopSearcher, opts ...ShopPickerOption) (*ShopPicker, error) {
	if searcher == nil {
		return nil, errors.New("usecase: shop searcher must not be nil")
	}
	p := &ShopPicker{
		searcher:  searcher,
		intn:      rand.IntN,
		blacklist: chainBlacklist,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PickRandomShop returns a random shop in areaCode matching keyword. Search
// failures are logged and reported as no shop.
func (p *ShopPicker) PickRandomShop(ctx context.Context, areaCode, keyword string) (domain.Shop, bool) {
	shops, err := p.searcher.Search(ctx, areaCode, keyword, searchResultCap)
	if err != nil {
		slog.WarnContext(ctx, "shop search failed", "err", err, "area", areaCode, "keyword", keyword)
		p.metrics.ObserveShopLookup("error")
		return domain.Shop{}, false
	}
	if len(shops) == 0 {
		p.metrics.ObserveShopLookup("none")
		return domain.Shop{}, false
	}

	candidates := pie.Filter(shops, func(s domain.Shop) bool {
		return !p.isChain(s.Name)
	})
	result := "found"
	if len(candidates) == 0 {
		candidates = shops
		result = "fallback"
	}
	p.metrics.ObserveShopLookup(result)
	return candidates[p.intn(len(candidates))], true
}

func (p *ShopPicker) isChain(name string) bool {
	return pie.Any(p.blacklist, func(chain string) bool {
		return strings.Contains(name, chain)
	})
}
