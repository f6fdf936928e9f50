package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/models"
)

// PriceSource is the lookup seam the engine consumes; *price.Service
// satisfies it. The bool reports whether the catalog UUID resolved to a
// priced printing at all.
type PriceSource interface {
	PricesByCatalogID(cardID string) (models.CardPrices, bool)
}

// Engine aggregates per-card prices over a collection. It is stateless;
// every call reads whatever snapshot the price service currently holds.
type Engine struct {
	prices PriceSource
}

func NewEngine(prices PriceSource) *Engine {
	return &Engine{prices: prices}
}

// Row is one inventory line: a Scryfall catalog UUID and how many copies
// are held. Fallback, when set, is a caller-supplied unit price (typically
// the recorded purchase price) used only in best-available mode.
type Row struct {
	CardID   string
	Quantity int64
	Fallback *decimal.Decimal
}

// Value totals the inventory against both retail sources independently.
// Rows whose card UUID is blank or unknown to the identifier bridge count
// as missing identifier; rows that resolve but price in neither source
// count as missing price. The two sources are never blended.
func (e *Engine) Value(rows []Row) models.ValuationSummary {
	summary := models.ValuationSummary{Rows: len(rows)}

	for _, row := range rows {
		if row.CardID == "" {
			summary.RowsMissingIdentifier++
			continue
		}
		prices, ok := e.prices.PricesByCatalogID(row.CardID)
		if !ok {
			summary.RowsMissingIdentifier++
			continue
		}
		if prices.Empty() {
			summary.RowsMissingPrice++
			continue
		}

		qty := decimal.NewFromInt(row.Quantity)
		if prices.TCGPlayer != nil {
			summary.TCGPlayerTotal = summary.TCGPlayerTotal.Add(prices.TCGPlayer.Mul(qty))
		}
		if prices.CardKingdom != nil {
			summary.CardKingdomTotal = summary.CardKingdomTotal.Add(prices.CardKingdom.Mul(qty))
		}
	}

	return summary
}

// BestAvailableTotal picks one representative unit price per row: the
// preferred source when it has a price, else the other source, else the
// row's fallback. Rows with none of the three contribute nothing.
func (e *Engine) BestAvailableTotal(rows []Row, preferred string) decimal.Decimal {
	var total decimal.Decimal
	for _, row := range rows {
		unit, ok := e.bestUnitPrice(row, preferred)
		if !ok {
			continue
		}
		total = total.Add(unit.Mul(decimal.NewFromInt(row.Quantity)))
	}
	return total
}

func (e *Engine) bestUnitPrice(row Row, preferred string) (decimal.Decimal, bool) {
	if row.CardID != "" {
		if prices, ok := e.prices.PricesByCatalogID(row.CardID); ok {
			if p, ok := prices.Source(preferred); ok {
				return p, true
			}
			for _, source := range models.Sources {
				if source == preferred {
					continue
				}
				if p, ok := prices.Source(source); ok {
					return p, true
				}
			}
		}
	}
	if row.Fallback != nil && row.Fallback.IsPositive() {
		return *row.Fallback, true
	}
	return decimal.Decimal{}, false
}
