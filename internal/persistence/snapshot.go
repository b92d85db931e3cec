package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/danielvanorman/commandeconomy-sub003/internal/account"
	"github.com/danielvanorman/commandeconomy-sub003/internal/ware"
)

// Snapshot is a portable point-in-time capture of marketplace state,
// written as zstd-compressed JSON. Unlike the database it carries the full
// ware records, so a snapshot can be inspected without the catalog.
type Snapshot struct {
	Taken    time.Time         `json:"taken"`
	Wares    []WareState       `json:"wares"`
	Accounts []account.Account `json:"accounts"`
}

// WareState is one ware's full record in a snapshot.
type WareState struct {
	ID         string   `json:"id"`
	Alias      string   `json:"alias,omitempty"`
	Kind       string   `json:"kind"`
	PriceBase  *float64 `json:"price_base,omitempty"`
	Level      uint8    `json:"level"`
	Yield      int      `json:"yield"`
	Quantity   int      `json:"quantity"`
	Remainder  int      `json:"remainder,omitempty"`
	Components []string `json:"components,omitempty"`
	Ratios     []int    `json:"ratios,omitempty"`
}

// WriteSnapshot captures the registry and ledger into a compressed snapshot
// file. The file is written atomically via rename.
func WriteSnapshot(path string, reg *ware.Registry, ledger *account.Ledger) error {
	snap := Snapshot{
		Taken:    time.Now().UTC(),
		Accounts: ledger.Accounts(),
	}
	for _, w := range reg.Wares() {
		st := WareState{
			ID:         w.ID,
			Alias:      w.Alias,
			Kind:       ware.KindName(w.Kind),
			Level:      w.Level,
			Yield:      w.Yield,
			Quantity:   w.Quantity(),
			Remainder:  w.Remainder(),
			Components: w.ComponentIDs,
			Ratios:     w.Ratios,
		}
		if !math.IsNaN(w.PriceBase) {
			price := w.PriceBase
			st.PriceBase = &price
		}
		snap.Wares = append(snap.Wares, st)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return fmt.Errorf("zstd writer: %w", err)
	}

	if err := json.NewEncoder(enc).Encode(&snap); err != nil {
		enc.Close()
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("close zstd writer: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename snapshot: %w", err)
	}

	slog.Info("snapshot written", "path", path, "wares", len(snap.Wares), "accounts", len(snap.Accounts))
	return nil
}

// ReadSnapshot loads and decompresses a snapshot file.
func ReadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	var snap Snapshot
	if err := json.NewDecoder(dec).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}
