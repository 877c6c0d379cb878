package ledger

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// header is the ledger file's wire format. Column order is load-bearing:
// existing ledgers from earlier releases are read byte-for-byte.
var header = []string{
	"ac_no", "ac_id", "acc_holder_name", "denomination",
	"acc_opening_date", "no_of_installments", "is_active", "aslaas_no",
}

// Store reads and rewrites the ledger file. All mutation goes through Save,
// which replaces the file atomically so a crash never leaves a reader with
// a truncated ledger.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewStore creates a store for the ledger file at path.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With(slog.String("component", "ledger_store")),
	}
}

// Path returns the ledger file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the full ledger. A missing file is an empty ledger, not an
// error: the file appears on first Save.
func (s *Store) Load() ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ledger %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger %s: %w", s.path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	accounts := make([]Account, 0, len(records)-1)
	for i, rec := range records[1:] {
		acc, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("ledger row %d: %w", i+2, err)
		}
		accounts = append(accounts, acc)
	}

	s.logger.Debug("Ledger loaded",
		slog.String("path", s.path),
		slog.Int("accounts", len(accounts)))

	return accounts, nil
}

// Save rewrites the ledger wholesale. The new content is written to a temp
// file in the same directory and renamed over the old one.
func (s *Store) Save(accounts []Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger header: %w", err)
	}
	for _, a := range accounts {
		if err := w.Write(formatRow(a)); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write ledger row %s: %w", a.No, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp ledger: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}

	s.logger.Info("Ledger saved",
		slog.String("path", s.path),
		slog.Int("accounts", len(accounts)))

	return nil
}

func parseRow(rec []string) (Account, error) {
	if len(rec) != len(header) {
		return Account{}, fmt.Errorf("expected %d columns, got %d", len(header), len(rec))
	}
	id, err := strconv.Atoi(rec[1])
	if err != nil {
		return Account{}, fmt.Errorf("bad ac_id %q: %w", rec[1], err)
	}
	installments := 0
	if rec[5] != "" {
		installments, err = strconv.Atoi(rec[5])
		if err != nil {
			return Account{}, fmt.Errorf("bad no_of_installments %q: %w", rec[5], err)
		}
	}
	return Account{
		No:           rec[0],
		ID:           id,
		HolderName:   rec[2],
		Denomination: rec[3],
		OpeningDate:  rec[4],
		Installments: installments,
		Active:       rec[6] == "1",
		CrossRef:     rec[7],
	}, nil
}

func formatRow(a Account) []string {
	active := "0"
	if a.Active {
		active = "1"
	}
	return []string{
		a.No,
		strconv.Itoa(a.ID),
		a.HolderName,
		a.Denomination,
		a.OpeningDate,
		strconv.Itoa(a.Installments),
		active,
		a.CrossRef,
	}
}
