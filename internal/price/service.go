package price

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/config"
	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/models"
)

// snapshot is the immutable pair of indices readers see. The service swaps
// whole snapshots; nothing inside one is ever mutated after publication.
type snapshot struct {
	prices      PriceIndex
	bridge      BridgeIndex
	refreshedAt time.Time
}

// Service owns the price cache: it coordinates refreshes against the
// upstream price authority and answers lookups from an atomically
// published snapshot. One instance serves the whole process.
type Service struct {
	cfg     config.PriceConfig
	fetcher Fetcher

	snap       atomic.Pointer[snapshot]
	group      singleflight.Group
	refreshing atomic.Bool
}

func NewService(cfg config.PriceConfig, fetcher Fetcher) *Service {
	s := &Service{cfg: cfg, fetcher: fetcher}
	s.snap.Store(&snapshot{prices: PriceIndex{}, bridge: BridgeIndex{}})
	return s
}

// Initialize loads the disk cache and, when the cache is stale or absent,
// kicks off a background refresh. Refresh errors at startup are logged
// only; the service stays usable with whatever it has.
func (s *Service) Initialize(ctx context.Context) {
	snap, err := loadCache(s.cfg.CachePath)
	if err != nil {
		log.Printf("price cache: load: %v", err)
	}
	if snap != nil {
		s.snap.Store(snap)
		log.Printf("price cache: loaded %d priced printings, %d mappings (refreshed %s)",
			len(snap.prices), len(snap.bridge), snap.refreshedAt.Format(time.RFC3339))
	}

	if s.Stale() {
		go func() {
			if err := s.Refresh(ctx); err != nil {
				log.Printf("price cache: startup refresh: %v", err)
			}
		}()
	}
}

// Stale reports whether the last successful price refresh is older than the
// configured TTL. A never-refreshed cache is always stale.
func (s *Service) Stale() bool {
	at := s.snap.Load().refreshedAt
	if at.IsZero() {
		return true
	}
	return time.Since(at) > s.cfg.CacheTTL
}

// Refresh fetches both upstream documents and republishes the indices.
// Concurrent callers share a single in-flight refresh and its result.
func (s *Service) Refresh(ctx context.Context) error {
	_, err, _ := s.group.Do("refresh", func() (interface{}, error) {
		s.refreshing.Store(true)
		defer s.refreshing.Store(false)
		return nil, s.doRefresh(ctx)
	})
	return err
}

// doRefresh runs the refresh protocol. The two documents are independent:
// a failure on either side preserves that side's previous index, and the
// timestamp only moves when the price document succeeded. The bridge is
// always built against whichever price index ends up authoritative, so a
// published snapshot never maps to unpriced printings.
func (s *Service) doRefresh(ctx context.Context) error {
	cur := s.snap.Load()
	next := &snapshot{prices: cur.prices, bridge: cur.bridge, refreshedAt: cur.refreshedAt}

	prices, priceErr := s.buildPrices(ctx)
	if priceErr != nil {
		log.Printf("price refresh: price document: %v", priceErr)
	} else {
		next.prices = prices
		next.refreshedAt = time.Now().UTC()
	}

	bridge, bridgeErr := s.buildBridge(ctx, next.prices)
	if bridgeErr != nil {
		log.Printf("price refresh: identifier document: %v", bridgeErr)
	} else {
		next.bridge = bridge
	}

	s.snap.Store(next)

	if priceErr == nil || bridgeErr == nil {
		if err := saveCache(s.cfg.CachePath, next); err != nil {
			log.Printf("price refresh: persist cache: %v", err)
		}
	}

	if priceErr != nil {
		return priceErr
	}
	return bridgeErr
}

func (s *Service) buildPrices(ctx context.Context) (PriceIndex, error) {
	body, err := s.fetcher.Fetch(ctx, s.cfg.PriceURL, s.cfg.PriceFetchTimeout)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return buildPriceIndex(body)
}

func (s *Service) buildBridge(ctx context.Context, prices PriceIndex) (BridgeIndex, error) {
	body, err := s.fetcher.Fetch(ctx, s.cfg.IdentifierURL, s.cfg.IdentifierFetchTimeout)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return buildBridgeIndex(body, prices, s.cfg.ProgressInterval)
}

// PriceByUpstreamID returns the current price of a printing in the named
// source. Missing record, missing source or a non-positive latest
// observation all read as no price.
func (s *Service) PriceByUpstreamID(printingID, source string) (decimal.Decimal, bool) {
	record, ok := s.snap.Load().prices[printingID]
	if !ok {
		return decimal.Decimal{}, false
	}
	return record.Latest(source)
}

// PriceByCatalogID resolves a Scryfall catalog UUID through the bridge and
// returns the current price in the named source.
func (s *Service) PriceByCatalogID(cardID, source string) (decimal.Decimal, bool) {
	snap := s.snap.Load()
	printingID, ok := snap.bridge[cardID]
	if !ok {
		return decimal.Decimal{}, false
	}
	record, ok := snap.prices[printingID]
	if !ok {
		return decimal.Decimal{}, false
	}
	return record.Latest(source)
}

// PricesByCatalogID returns both sources for a catalog UUID from a single
// consistent snapshot. The second result reports whether the catalog UUID
// resolved at all; a resolved card can still have no price in either source.
func (s *Service) PricesByCatalogID(cardID string) (models.CardPrices, bool) {
	snap := s.snap.Load()
	printingID, ok := snap.bridge[cardID]
	if !ok {
		return models.CardPrices{}, false
	}
	record, ok := snap.prices[printingID]
	if !ok {
		return models.CardPrices{}, false
	}

	var prices models.CardPrices
	if p, ok := record.Latest(models.SourceTCGPlayer); ok {
		prices.TCGPlayer = &p
	}
	if p, ok := record.Latest(models.SourceCardKingdom); ok {
		prices.CardKingdom = &p
	}
	return prices, true
}

// Status reports the cache state for health checks. Ready means the price
// index has entries, regardless of staleness; staleness is its own signal.
func (s *Service) Status() models.PriceServiceStatus {
	snap := s.snap.Load()
	status := models.PriceServiceStatus{
		PricedCards: len(snap.prices),
		MappedCards: len(snap.bridge),
		RefreshedAt: snap.refreshedAt,
		Stale:       s.Stale(),
	}
	switch {
	case s.refreshing.Load() && status.PricedCards > 0:
		status.State = "warm"
	case s.refreshing.Load():
		status.State = "refreshing"
	case status.PricedCards > 0:
		status.State = "ready"
	default:
		status.State = "cold"
	}
	return status
}
