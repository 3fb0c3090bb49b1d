// Package statestore persists the user's last-selected symbol and
// timeframe as a single JSON file, written atomically via a sibling .tmp
// file plus rename.
package statestore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"cryptotick/internal/model"
)

// Selection is the persisted selection: last symbol and timeframe.
type Selection struct {
	LastSymbol    string `json:"lastSymbol"`
	LastTimeframe string `json:"lastTimeframe"`
}

// Store reads and writes the selection file under a state directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

// New creates a Store rooted at dir. dir must already exist; callers are
// responsible for creating it.
func New(dir string, logger *zap.Logger) *Store {
	return &Store{dir: dir, logger: logger.Named("statestore")}
}

func (s *Store) path() string {
	return filepath.Join(s.dir, "state.json")
}

// Load returns the persisted symbol/timeframe. An absent, unreadable, or
// malformed file yields (nil, nil, nil) rather than an error: read
// failures never propagate. An invalid timeframe value is discarded
// independently of a valid symbol value, and vice versa.
func (s *Store) Load() (*model.Symbol, *model.Timeframe, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		return nil, nil, nil
	}

	var sel Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		s.logger.Debug("discarding malformed state file", zap.Error(err))
		return nil, nil, nil
	}

	var symPtr *model.Symbol
	if sym := model.Symbol(sel.LastSymbol); sym.IsValid() {
		symPtr = &sym
	}
	var tfPtr *model.Timeframe
	if tf := model.Timeframe(sel.LastTimeframe); tf.IsValid() {
		tfPtr = &tf
	}

	return symPtr, tfPtr, nil
}

// Save writes the selection atomically: write to state.json.tmp, then
// rename over state.json. A crash between the two steps leaves either the
// previous state.json (rename never happened) or the new one (rename
// completed) — never a half-written file.
func (s *Store) Save(symbol model.Symbol, tf model.Timeframe) error {
	sel := Selection{LastSymbol: string(symbol), LastTimeframe: string(tf)}
	data, err := json.Marshal(sel)
	if err != nil {
		return err
	}

	tmpPath := s.path() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path()); err != nil {
		return err
	}

	s.logger.Debug("persisted selection", zap.String("symbol", string(symbol)), zap.String("timeframe", string(tf)))
	return nil
}
