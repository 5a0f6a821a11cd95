package store

import (
	"math/big"
	"testing"

	"chitamaker/pkg/venues/taker"
)

func TestSaveAndLoadPosition(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	avgEntryPrice, _ := new(big.Int).SetString("2500000000000000000000", 10)
	pos := taker.UserPosition{
		Symbol:        "ETH-PERP",
		Side:          true,
		Quantity:      *big.NewInt(3_000_000_000_000_000_000),
		AvgEntryPrice: *avgEntryPrice,
		Margin:        1.5,
		Leverage:      5,
	}

	if err := s.SavePosition("ETH-PERP", pos); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	loaded, err := s.LoadPosition("ETH-PERP")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadPosition returned nil")
	}

	if loaded.Quantity.Cmp(&pos.Quantity) != 0 {
		t.Errorf("Quantity = %v, want %v", loaded.Quantity.String(), pos.Quantity.String())
	}
	if loaded.Side != pos.Side {
		t.Errorf("Side = %v, want %v", loaded.Side, pos.Side)
	}
	if loaded.Margin != pos.Margin {
		t.Errorf("Margin = %v, want %v", loaded.Margin, pos.Margin)
	}
}

func TestLoadPositionMissing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	loaded, err := s.LoadPosition("nonexistent")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing position, got %+v", loaded)
	}
}

func TestSavePositionOverwrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	pos1 := taker.UserPosition{Quantity: *big.NewInt(10)}
	pos2 := taker.UserPosition{Quantity: *big.NewInt(20)}

	_ = s.SavePosition("ETH-PERP", pos1)
	_ = s.SavePosition("ETH-PERP", pos2)

	loaded, err := s.LoadPosition("ETH-PERP")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if loaded.Quantity.Cmp(big.NewInt(20)) != 0 {
		t.Errorf("Quantity = %v, want 20 (latest save)", loaded.Quantity.String())
	}
}
