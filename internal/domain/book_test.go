package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func lvl(price, size string) BookLevel {
	return BookLevel{
		Price: decimal.RequireFromString(price),
		Size:  decimal.RequireFromString(size),
	}
}

func TestLocalBook_ApplySnapshot(t *testing.T) {
	book := NewLocalBook("binance", "BTC/USDT")
	book.ApplySnapshot(BookSnapshot{
		Bids: []BookLevel{lvl("100", "1"), lvl("99", "2")},
		Asks: []BookLevel{lvl("101", "3"), lvl("102", "4")},
	})

	bids, asks := book.Depth()
	if bids != 2 || asks != 2 {
		t.Fatalf("depth = (%d, %d), want (2, 2)", bids, asks)
	}

	// A second snapshot replaces everything, not merges.
	book.ApplySnapshot(BookSnapshot{
		Bids: []BookLevel{lvl("50", "1")},
	})
	bids, asks = book.Depth()
	if bids != 1 || asks != 0 {
		t.Errorf("depth after resnapshot = (%d, %d), want (1, 0)", bids, asks)
	}
}

func TestLocalBook_ApplyDelta_ZeroSizeRemoves(t *testing.T) {
	book := NewLocalBook("binance", "BTC/USDT")
	book.ApplySnapshot(BookSnapshot{
		Bids: []BookLevel{lvl("100", "1")},
		Asks: []BookLevel{lvl("101", "2")},
	})

	// Zero size for a present price removes the level.
	book.ApplyDelta(BookDelta{Bids: []BookLevel{lvl("100", "0")}})
	bids, asks := book.Depth()
	if bids != 0 || asks != 1 {
		t.Fatalf("depth = (%d, %d), want (0, 1)", bids, asks)
	}

	// Zero size for an absent price is a no-op.
	book.ApplyDelta(BookDelta{Asks: []BookLevel{lvl("999", "0")}})
	bids, asks = book.Depth()
	if bids != 0 || asks != 1 {
		t.Errorf("depth after absent removal = (%d, %d), want (0, 1)", bids, asks)
	}
}

func TestLocalBook_ApplyDelta_Overwrite(t *testing.T) {
	book := NewLocalBook("binance", "BTC/USDT")
	book.ApplySnapshot(BookSnapshot{
		Bids: []BookLevel{lvl("100", "1")},
	})

	book.ApplyDelta(BookDelta{Bids: []BookLevel{lvl("100", "5"), lvl("98", "2")}})

	bids := book.Bids()
	if len(bids) != 2 {
		t.Fatalf("len(bids) = %d, want 2", len(bids))
	}
	if !bids[0].Price.Equal(decimal.RequireFromString("100")) {
		t.Errorf("best bid price = %s, want 100", bids[0].Price)
	}
	if !bids[0].Size.Equal(decimal.RequireFromString("5")) {
		t.Errorf("best bid size = %s, want 5", bids[0].Size)
	}
}

func TestLocalBook_Sorting(t *testing.T) {
	book := NewLocalBook("binance", "BTC/USDT")
	book.ApplySnapshot(BookSnapshot{
		Bids: []BookLevel{lvl("99", "1"), lvl("100", "1"), lvl("98", "1")},
		Asks: []BookLevel{lvl("103", "1"), lvl("101", "1"), lvl("102", "1")},
	})

	bids := book.Bids()
	for i := 1; i < len(bids); i++ {
		if bids[i].Price.GreaterThan(bids[i-1].Price) {
			t.Errorf("bids not sorted best-first: %s after %s", bids[i].Price, bids[i-1].Price)
		}
	}

	asks := book.Asks()
	for i := 1; i < len(asks); i++ {
		if asks[i].Price.LessThan(asks[i-1].Price) {
			t.Errorf("asks not sorted best-first: %s after %s", asks[i].Price, asks[i-1].Price)
		}
	}
}
