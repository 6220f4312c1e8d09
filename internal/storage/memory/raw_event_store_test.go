package memory

import (
	"context"
	"errors"
	"testing"

	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/storage"
)

func TestRawEventStore_InsertAndGet(t *testing.T) {
	store := NewRawEventStore()
	ctx := context.Background()

	event := &domain.RawEvent{
		Kind:        domain.EventBorrow,
		MarketID:    "0xmkt",
		Borrower:    "0xb1",
		Assets:      500000,
		BlockTime:   1000,
		BlockNumber: 10,
		LogIndex:    2,
	}

	if err := store.Insert(ctx, event); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByMarket(ctx, "0xmkt")
	if err != nil {
		t.Fatalf("GetByMarket failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(got))
	}
	if got[0].Assets != 500000 {
		t.Errorf("Assets mismatch: got %f, want %f", got[0].Assets, 500000.0)
	}
}

func TestRawEventStore_DuplicateKey(t *testing.T) {
	store := NewRawEventStore()
	ctx := context.Background()

	event := &domain.RawEvent{
		Kind:        domain.EventRepay,
		MarketID:    "0xmkt",
		BlockNumber: 10,
		LogIndex:    2,
	}

	if err := store.Insert(ctx, event); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, event)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestRawEventStore_GetByMarketOrdering(t *testing.T) {
	store := NewRawEventStore()
	ctx := context.Background()

	// Inserted out of order.
	events := []*domain.RawEvent{
		{Kind: domain.EventBorrow, MarketID: "0xmkt", BlockTime: 2000, BlockNumber: 20, LogIndex: 0},
		{Kind: domain.EventBorrow, MarketID: "0xmkt", BlockTime: 1000, BlockNumber: 10, LogIndex: 5},
		{Kind: domain.EventBorrow, MarketID: "0xmkt", BlockTime: 1000, BlockNumber: 10, LogIndex: 1},
	}
	if err := store.InsertBulk(ctx, events); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByMarket(ctx, "0xmkt")
	if err != nil {
		t.Fatalf("GetByMarket failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(got))
	}
	if got[0].LogIndex != 1 || got[1].LogIndex != 5 || got[2].BlockTime != 2000 {
		t.Errorf("Events not ordered by (block_time, block_number, log_index): %+v", got)
	}
}

func TestRawEventStore_InsertBulkSkipsStoredDuplicates(t *testing.T) {
	store := NewRawEventStore()
	ctx := context.Background()

	old := &domain.RawEvent{
		Kind: domain.EventBorrow, MarketID: "0xmkt", Borrower: "0xb1",
		Assets: 500000, BlockTime: 1000, BlockNumber: 10, LogIndex: 0,
	}
	if err := store.Insert(ctx, old); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	// A refetch returns the full history: the stored row again plus a new
	// Repay. The new row must land.
	refetch := []*domain.RawEvent{
		old,
		{Kind: domain.EventRepay, MarketID: "0xmkt", Borrower: "0xb1",
			Assets: 100000, BlockTime: 2000, BlockNumber: 20, LogIndex: 0},
	}
	if err := store.InsertBulk(ctx, refetch); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	all, err := store.GetByMarket(ctx, "0xmkt")
	if err != nil {
		t.Fatalf("GetByMarket failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 events after refetch, got %d", len(all))
	}
	if all[1].Kind != domain.EventRepay {
		t.Errorf("Repay from refetch not stored: %+v", all[1])
	}
}

func TestRawEventStore_InsertBulkIntraBatchDuplicate(t *testing.T) {
	store := NewRawEventStore()
	ctx := context.Background()

	events := []*domain.RawEvent{
		{Kind: domain.EventBorrow, MarketID: "0xmkt", BlockNumber: 10, LogIndex: 1},
		{Kind: domain.EventBorrow, MarketID: "0xmkt", BlockNumber: 10, LogIndex: 1},
	}
	if err := store.InsertBulk(ctx, events); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	all, _ := store.GetByMarket(ctx, "0xmkt")
	if len(all) != 1 {
		t.Errorf("Expected intra-batch duplicates to collapse to 1 event, got %d", len(all))
	}
}

func TestRawEventStore_GetByMarketTimeRange(t *testing.T) {
	store := NewRawEventStore()
	ctx := context.Background()

	events := []*domain.RawEvent{
		{MarketID: "0xmkt", BlockTime: 1000, BlockNumber: 10, LogIndex: 0},
		{MarketID: "0xmkt", BlockTime: 2000, BlockNumber: 20, LogIndex: 0},
		{MarketID: "0xmkt", BlockTime: 3000, BlockNumber: 30, LogIndex: 0},
		{MarketID: "0xother", BlockTime: 2000, BlockNumber: 20, LogIndex: 1},
	}
	if err := store.InsertBulk(ctx, events); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	// [1000, 3000) excludes the 3000 event and the other market.
	got, err := store.GetByMarketTimeRange(ctx, "0xmkt", 1000, 3000)
	if err != nil {
		t.Fatalf("GetByMarketTimeRange failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 events in range, got %d", len(got))
	}
}

func TestRawEventStore_ReturnsCopies(t *testing.T) {
	store := NewRawEventStore()
	ctx := context.Background()

	event := &domain.RawEvent{MarketID: "0xmkt", BlockNumber: 1, LogIndex: 0, Assets: 100}
	if err := store.Insert(ctx, event); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, _ := store.GetByMarket(ctx, "0xmkt")
	got[0].Assets = 999

	again, _ := store.GetByMarket(ctx, "0xmkt")
	if again[0].Assets != 100 {
		t.Errorf("Store leaked internal state: got %f", again[0].Assets)
	}
}
