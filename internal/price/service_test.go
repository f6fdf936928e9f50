package price

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/config"
	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/models"
)

const (
	testPriceURL      = "http://upstream.test/AllPrices.json"
	testIdentifierURL = "http://upstream.test/AllIdentifiers.json"
)

type stubFetcher struct {
	mu    sync.Mutex
	docs  map[string]string
	errs  map[string]error
	calls map[string]int
	block chan struct{}
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		docs:  make(map[string]string),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *stubFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (io.ReadCloser, error) {
	f.mu.Lock()
	f.calls[url]++
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(f.docs[url])), nil
}

func (f *stubFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func testPriceConfig(t *testing.T) config.PriceConfig {
	t.Helper()
	return config.PriceConfig{
		PriceURL:               testPriceURL,
		IdentifierURL:          testIdentifierURL,
		CachePath:              filepath.Join(t.TempDir(), "price-cache.json"),
		CacheTTL:               24 * time.Hour,
		PriceFetchTimeout:      time.Second,
		IdentifierFetchTimeout: time.Second,
		ProgressInterval:       50000,
	}
}

func seedCache(t *testing.T, path string, age time.Duration) {
	t.Helper()
	snap := &snapshot{
		prices: PriceIndex{
			"U1": {TCGPlayer: map[string]decimal.Decimal{
				"2024-01-01": decimal.RequireFromString("1.00"),
				"2024-01-02": decimal.RequireFromString("1.50"),
			}},
		},
		bridge:      BridgeIndex{"C1": "U1"},
		refreshedAt: time.Now().UTC().Add(-age),
	}
	if err := saveCache(path, snap); err != nil {
		t.Fatalf("seedCache: %v", err)
	}
}

// Cold start against a fresh cache: lookups answer from disk state and the
// upstream is never contacted.
func TestColdStartWithFreshCache(t *testing.T) {
	cfg := testPriceConfig(t)
	seedCache(t, cfg.CachePath, time.Hour)

	fetcher := newStubFetcher()
	svc := NewService(cfg, fetcher)
	svc.Initialize(context.Background())

	if got, ok := svc.PriceByUpstreamID("U1", models.SourceTCGPlayer); !ok || !got.Equal(decimal.RequireFromString("1.50")) {
		t.Fatalf("upstream lookup: got %v %v", got, ok)
	}
	if got, ok := svc.PriceByCatalogID("C1", models.SourceTCGPlayer); !ok || !got.Equal(decimal.RequireFromString("1.50")) {
		t.Fatalf("catalog lookup: got %v %v", got, ok)
	}
	if svc.Stale() {
		t.Fatal("one-hour-old cache must not be stale")
	}
	if n := fetcher.callCount(testPriceURL) + fetcher.callCount(testIdentifierURL); n != 0 {
		t.Fatalf("fresh cache must not trigger fetches, saw %d", n)
	}
}

// Stale cache, price document refreshes, identifier endpoint fails: the new
// price index lands, the old bridge survives, and the timestamp advances.
func TestRefreshIdentifierFailurePreservesBridge(t *testing.T) {
	cfg := testPriceConfig(t)
	seedCache(t, cfg.CachePath, 48*time.Hour)

	fetcher := newStubFetcher()
	fetcher.docs[testPriceURL] = `{"data":{
	  "U1": {"paper": {"tcgplayer": {"retail": {"normal": {"2024-02-02": 2.00}}}}},
	  "U2": {"paper": {"cardkingdom": {"retail": {"normal": {"2024-02-02": 5.00}}}}}
	}}`
	fetcher.errs[testIdentifierURL] = errors.New("identifier endpoint timed out")

	svc := NewService(cfg, fetcher)
	snap, err := loadCache(cfg.CachePath)
	if err != nil {
		t.Fatal(err)
	}
	svc.snap.Store(snap)

	if err := svc.Refresh(context.Background()); err == nil {
		t.Fatal("expected the identifier failure to surface")
	}

	if got, ok := svc.PriceByUpstreamID("U1", models.SourceTCGPlayer); !ok || !got.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("U1 should carry the refreshed price, got %v %v", got, ok)
	}
	if _, ok := svc.PriceByUpstreamID("U2", models.SourceCardKingdom); !ok {
		t.Fatal("U2 should be indexed after refresh")
	}
	if got, ok := svc.PriceByCatalogID("C1", models.SourceTCGPlayer); !ok || !got.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("old bridge must keep resolving C1, got %v %v", got, ok)
	}
	if svc.Stale() {
		t.Fatal("timestamp must advance on price success")
	}

	// The partially refreshed snapshot is persisted.
	persisted, err := loadCache(cfg.CachePath)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := persisted.prices["U2"]; !ok {
		t.Fatal("persisted cache should hold the new price index")
	}
	if persisted.bridge["C1"] != "U1" {
		t.Fatal("persisted cache should hold the preserved bridge")
	}
}

// Price document fails: price index and timestamp stay put, and the bridge
// rebuild runs against the old authoritative price index.
func TestRefreshPriceFailurePreservesIndexAndTimestamp(t *testing.T) {
	cfg := testPriceConfig(t)
	seedCache(t, cfg.CachePath, 48*time.Hour)

	fetcher := newStubFetcher()
	fetcher.errs[testPriceURL] = errors.New("price endpoint down")
	fetcher.docs[testIdentifierURL] = `{"data":{
	  "U1": {"identifiers": {"catalogScryfallId": "C1-new"}},
	  "U9": {"identifiers": {"catalogScryfallId": "C9"}}
	}}`

	svc := NewService(cfg, fetcher)
	snap, err := loadCache(cfg.CachePath)
	if err != nil {
		t.Fatal(err)
	}
	before := snap.refreshedAt
	svc.snap.Store(snap)

	if err := svc.Refresh(context.Background()); err == nil {
		t.Fatal("expected the price failure to surface")
	}

	cur := svc.snap.Load()
	if !cur.refreshedAt.Equal(before) {
		t.Fatalf("timestamp must not move on price failure: %v -> %v", before, cur.refreshedAt)
	}
	if _, ok := cur.prices["U1"]; !ok {
		t.Fatal("old price index must survive")
	}
	// U9 is not priced by the surviving index, so it must be filtered out.
	if _, ok := cur.bridge["C9"]; ok {
		t.Fatal("bridge must not map unpriced printings")
	}
	if cur.bridge["C1-new"] != "U1" {
		t.Fatalf("bridge should rebuild against the old price index, got %v", cur.bridge)
	}
}

// Both documents fail: nothing observable changes.
func TestRefreshTotalFailureKeepsSnapshot(t *testing.T) {
	cfg := testPriceConfig(t)
	seedCache(t, cfg.CachePath, time.Hour)

	fetcher := newStubFetcher()
	fetcher.errs[testPriceURL] = errors.New("down")
	fetcher.errs[testIdentifierURL] = errors.New("down")

	svc := NewService(cfg, fetcher)
	snap, err := loadCache(cfg.CachePath)
	if err != nil {
		t.Fatal(err)
	}
	svc.snap.Store(snap)

	if err := svc.Refresh(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	if got, ok := svc.PriceByCatalogID("C1", models.SourceTCGPlayer); !ok || !got.Equal(decimal.RequireFromString("1.50")) {
		t.Fatalf("snapshot must be unchanged, got %v %v", got, ok)
	}
}

// Two refreshes with identical upstream bytes publish identical indices.
func TestRefreshIsIdempotent(t *testing.T) {
	cfg := testPriceConfig(t)

	fetcher := newStubFetcher()
	fetcher.docs[testPriceURL] = `{"data":{"U1": {"paper": {"tcgplayer": {"retail": {"normal": {"2024-02-02": 2.00}}}}}}}`
	fetcher.docs[testIdentifierURL] = `{"data":{"U1": {"identifiers": {"catalogScryfallId": "C1"}}}}`

	svc := NewService(cfg, fetcher)
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	first := svc.snap.Load()
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	second := svc.snap.Load()

	if len(first.prices) != len(second.prices) || len(first.bridge) != len(second.bridge) {
		t.Fatalf("indices differ across identical refreshes: %d/%d vs %d/%d",
			len(first.prices), len(first.bridge), len(second.prices), len(second.bridge))
	}
	a, _ := first.prices["U1"].Latest(models.SourceTCGPlayer)
	b, _ := second.prices["U1"].Latest(models.SourceTCGPlayer)
	if !a.Equal(b) {
		t.Fatalf("prices differ: %v vs %v", a, b)
	}
	if second.refreshedAt.Before(first.refreshedAt) {
		t.Fatal("refresh timestamp must be monotonic")
	}
}

// Concurrent Refresh callers share one in-flight run: each upstream URL is
// fetched exactly once.
func TestRefreshSingleFlight(t *testing.T) {
	cfg := testPriceConfig(t)

	fetcher := newStubFetcher()
	fetcher.docs[testPriceURL] = `{"data":{"U1": {"paper": {"tcgplayer": {"retail": {"normal": {"2024-02-02": 2.00}}}}}}}`
	fetcher.docs[testIdentifierURL] = `{"data":{"U1": {"identifiers": {"catalogScryfallId": "C1"}}}}`
	fetcher.block = make(chan struct{})

	svc := NewService(cfg, fetcher)

	results := make(chan error, 2)
	go func() { results <- svc.Refresh(context.Background()) }()

	// Wait for the first caller to reach the fetcher before joining.
	deadline := time.After(2 * time.Second)
	for fetcher.callCount(testPriceURL) == 0 {
		select {
		case <-deadline:
			t.Fatal("first refresh never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	go func() { results <- svc.Refresh(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	close(fetcher.block)

	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
	}
	if n := fetcher.callCount(testPriceURL); n != 1 {
		t.Fatalf("price document fetched %d times, want 1", n)
	}
	if n := fetcher.callCount(testIdentifierURL); n != 1 {
		t.Fatalf("identifier document fetched %d times, want 1", n)
	}
}

// Initialize with a stale cache fires a background refresh that eventually
// publishes the new snapshot.
func TestInitializeRefreshesStaleCache(t *testing.T) {
	cfg := testPriceConfig(t)
	seedCache(t, cfg.CachePath, 48*time.Hour)

	fetcher := newStubFetcher()
	fetcher.docs[testPriceURL] = `{"data":{
	  "U1": {"paper": {"tcgplayer": {"retail": {"normal": {"2024-02-02": 2.00}}}}},
	  "U2": {"paper": {"tcgplayer": {"retail": {"normal": {"2024-02-02": 3.00}}}}}
	}}`
	fetcher.docs[testIdentifierURL] = `{"data":{
	  "U1": {"identifiers": {"catalogScryfallId": "C1"}},
	  "U2": {"identifiers": {"catalogScryfallId": "C2"}}
	}}`

	svc := NewService(cfg, fetcher)
	svc.Initialize(context.Background())

	deadline := time.After(5 * time.Second)
	for svc.Status().PricedCards != 2 {
		select {
		case <-deadline:
			t.Fatalf("background refresh never completed, status %+v", svc.Status())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if got, ok := svc.PriceByCatalogID("C2", models.SourceTCGPlayer); !ok || !got.Equal(decimal.RequireFromString("3.00")) {
		t.Fatalf("refreshed lookup: got %v %v", got, ok)
	}
}

func TestPricesByCatalogIDMatchesPerSourceLookups(t *testing.T) {
	cfg := testPriceConfig(t)

	fetcher := newStubFetcher()
	fetcher.docs[testPriceURL] = `{"data":{
	  "U1": {"paper": {
	    "tcgplayer":   {"retail": {"normal": {"2024-02-02": 2.00}}},
	    "cardkingdom": {"retail": {"normal": {"2024-02-02": 1.50}}}
	  }},
	  "U2": {"paper": {"cardkingdom": {"retail": {"normal": {"2024-02-02": 5.00}}}}}
	}}`
	fetcher.docs[testIdentifierURL] = `{"data":{
	  "U1": {"identifiers": {"catalogScryfallId": "C1"}},
	  "U2": {"identifiers": {"catalogScryfallId": "C2"}}
	}}`

	svc := NewService(cfg, fetcher)
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	for _, cardID := range []string{"C1", "C2"} {
		prices, ok := svc.PricesByCatalogID(cardID)
		if !ok {
			t.Fatalf("%s should resolve", cardID)
		}
		for _, source := range models.Sources {
			single, singleOK := svc.PriceByCatalogID(cardID, source)
			paired, pairedOK := prices.Source(source)
			if singleOK != pairedOK {
				t.Fatalf("%s/%s: presence mismatch %v vs %v", cardID, source, singleOK, pairedOK)
			}
			if singleOK && !single.Equal(paired) {
				t.Fatalf("%s/%s: %v vs %v", cardID, source, single, paired)
			}
		}
	}

	if _, ok := svc.PricesByCatalogID("C-unknown"); ok {
		t.Fatal("unknown catalog id must not resolve")
	}
}

func TestStatusStateTransitions(t *testing.T) {
	cfg := testPriceConfig(t)
	svc := NewService(cfg, newStubFetcher())

	if got := svc.Status().State; got != "cold" {
		t.Fatalf("empty service state: want cold, got %s", got)
	}

	seedCache(t, cfg.CachePath, time.Hour)
	snap, err := loadCache(cfg.CachePath)
	if err != nil {
		t.Fatal(err)
	}
	svc.snap.Store(snap)

	if got := svc.Status().State; got != "ready" {
		t.Fatalf("loaded service state: want ready, got %s", got)
	}
}
