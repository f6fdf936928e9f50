package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// The two paper retail channels tracked upstream. They are independently
// sourced; a missing price in one says nothing about the other.
const (
	SourceTCGPlayer   = "tcgplayer"
	SourceCardKingdom = "cardkingdom"
)

// Sources lists every recognized retail source.
var Sources = []string{SourceTCGPlayer, SourceCardKingdom}

// ValidSource reports whether name is a recognized retail source.
func ValidSource(name string) bool {
	for _, s := range Sources {
		if s == name {
			return true
		}
	}
	return false
}

// CardPrices carries the current price of one printing in both retail
// sources. A nil entry means no price is available in that source.
type CardPrices struct {
	TCGPlayer   *decimal.Decimal `json:"tcgplayer"`
	CardKingdom *decimal.Decimal `json:"cardkingdom"`
}

// Source returns the price for the named source.
func (p CardPrices) Source(name string) (decimal.Decimal, bool) {
	switch name {
	case SourceTCGPlayer:
		if p.TCGPlayer != nil {
			return *p.TCGPlayer, true
		}
	case SourceCardKingdom:
		if p.CardKingdom != nil {
			return *p.CardKingdom, true
		}
	}
	return decimal.Decimal{}, false
}

// Empty reports whether no source has a price.
func (p CardPrices) Empty() bool {
	return p.TCGPlayer == nil && p.CardKingdom == nil
}

// ValuationSummary is the result of valuing an inventory against both
// retail sources.
type ValuationSummary struct {
	TCGPlayerTotal        decimal.Decimal `json:"tcgplayerTotal"`
	CardKingdomTotal      decimal.Decimal `json:"cardkingdomTotal"`
	Rows                  int             `json:"rows"`
	RowsMissingIdentifier int             `json:"rowsMissingIdentifier"`
	RowsMissingPrice      int             `json:"rowsMissingPrice"`
}

// PriceServiceStatus describes the cache for health and status endpoints.
type PriceServiceStatus struct {
	State       string    `json:"state"`
	PricedCards int       `json:"pricedCards"`
	MappedCards int       `json:"mappedCards"`
	RefreshedAt time.Time `json:"refreshedAt"`
	Stale       bool      `json:"stale"`
}
