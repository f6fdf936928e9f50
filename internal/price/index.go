package price

import (
	"encoding/json"
	"io"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/models"
)

// PriceRecord holds the paper retail price history of one printing, keyed
// by ISO date. A record exists only if at least one source has at least one
// dated entry with a positive price.
type PriceRecord struct {
	TCGPlayer   map[string]decimal.Decimal `json:"tcgplayer,omitempty"`
	CardKingdom map[string]decimal.Decimal `json:"cardkingdom,omitempty"`
}

func (r PriceRecord) history(source string) map[string]decimal.Decimal {
	switch source {
	case models.SourceTCGPlayer:
		return r.TCGPlayer
	case models.SourceCardKingdom:
		return r.CardKingdom
	}
	return nil
}

// Latest returns the price at the most recent date for the named source.
// ISO dates sort correctly as strings, so the maximum key is the newest
// observation. Non-positive values read as no price.
func (r PriceRecord) Latest(source string) (decimal.Decimal, bool) {
	history := r.history(source)
	var latest string
	for date := range history {
		if date > latest {
			latest = date
		}
	}
	if latest == "" {
		return decimal.Decimal{}, false
	}
	p := history[latest]
	if !p.IsPositive() {
		return decimal.Decimal{}, false
	}
	return p, true
}

func (r PriceRecord) hasAnyPositive() bool {
	for _, source := range models.Sources {
		for _, p := range r.history(source) {
			if p.IsPositive() {
				return true
			}
		}
	}
	return false
}

// PriceIndex maps upstream printing UUIDs to price records.
type PriceIndex map[string]PriceRecord

// BridgeIndex maps Scryfall catalog UUIDs to upstream printing UUIDs.
// It only ever contains printings present in the price index.
type BridgeIndex map[string]string

// rawPriceEntry mirrors the upstream per-printing shape. Only the normal
// (non-foil) retail channel is tracked.
type rawPriceEntry struct {
	Paper map[string]struct {
		Retail struct {
			Normal map[string]json.RawMessage `json:"normal"`
		} `json:"retail"`
	} `json:"paper"`
}

type rawIdentifierEntry struct {
	Identifiers struct {
		CatalogScryfallID string `json:"catalogScryfallId"`
	} `json:"identifiers"`
}

// buildPriceIndex consumes the full price document and returns a fresh
// index. Entries that fail to decode, carry malformed dates, or have no
// positive-priced observation are dropped.
func buildPriceIndex(r io.Reader) (PriceIndex, error) {
	index := make(PriceIndex)
	total := 0

	skipped, err := forEachDataEntry(r, func(uuid string, raw json.RawMessage) error {
		total++
		var entry rawPriceEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return errSkipEntry
		}

		var record PriceRecord
		for _, source := range models.Sources {
			channel, ok := entry.Paper[source]
			if !ok || len(channel.Retail.Normal) == 0 {
				continue
			}
			history := make(map[string]decimal.Decimal, len(channel.Retail.Normal))
			for date, rawPrice := range channel.Retail.Normal {
				if _, err := time.Parse("2006-01-02", date); err != nil {
					// A malformed date poisons the whole record.
					return errSkipEntry
				}
				var p decimal.Decimal
				if err := json.Unmarshal(rawPrice, &p); err != nil {
					// Non-numeric observation, treated as missing.
					continue
				}
				history[date] = p
			}
			if len(history) == 0 {
				continue
			}
			switch source {
			case models.SourceTCGPlayer:
				record.TCGPlayer = history
			case models.SourceCardKingdom:
				record.CardKingdom = history
			}
		}

		if !record.hasAnyPositive() {
			return errSkipEntry
		}
		index[uuid] = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("price index: %d priced of %d printings (%d skipped)", len(index), total, skipped)
	return index, nil
}

// buildBridgeIndex consumes the full identifier document and keeps one
// Scryfall mapping per printing that the given price index actually prices.
// The identifier corpus is an order of magnitude larger than the priced
// set; the filter is what keeps this map small.
func buildBridgeIndex(r io.Reader, prices PriceIndex, progressEvery int) (BridgeIndex, error) {
	bridge := make(BridgeIndex, len(prices))
	total := 0

	skipped, err := forEachDataEntry(r, func(uuid string, raw json.RawMessage) error {
		total++
		if progressEvery > 0 && total%progressEvery == 0 {
			log.Printf("identifier map: processed %d entries, kept %d", total, len(bridge))
		}
		if _, ok := prices[uuid]; !ok {
			return nil
		}
		var entry rawIdentifierEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return errSkipEntry
		}
		if entry.Identifiers.CatalogScryfallID == "" {
			return nil
		}
		bridge[entry.Identifiers.CatalogScryfallID] = uuid
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("identifier map: kept %d of %d entries (%d skipped)", len(bridge), total, skipped)
	return bridge, nil
}
