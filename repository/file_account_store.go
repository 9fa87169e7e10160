package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"scrimbet/models"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

// fileRecord is the on-disk shape of one account
type fileRecord struct {
	Balance            int64   `json:"balance"`
	Experience         int64   `json:"experience"`
	MatchesPlayed      int64   `json:"matches_played"`
	MatchesWon         int64   `json:"matches_won"`
	LastAttendanceDate *string `json:"last_attendance_date"`
}

// FileAccountStore keeps every account in one JSON document keyed by user id.
// Each Save rewrites the whole document through a temp file and a rename, so a
// crash leaves either the old or the new file in place.
type FileAccountStore struct {
	path string

	mu      sync.Mutex
	records map[string]fileRecord
	loaded  bool
}

// NewFileAccountStore creates a store writing to path
func NewFileAccountStore(path string) *FileAccountStore {
	return &FileAccountStore{path: path}
}

// Load reads the document; a missing file is an empty store
func (s *FileAccountStore) Load(ctx context.Context) (map[int64]*models.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readLocked(); err != nil {
		return nil, err
	}

	out := make(map[int64]*models.UserAccount, len(s.records))
	for key, rec := range s.records {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			log.WithFields(log.Fields{
				"path": s.path,
				"key":  key,
			}).Warn("Skipping account with a non-numeric id")
			continue
		}
		out[id] = &models.UserAccount{
			UserID:             id,
			Balance:            rec.Balance,
			Experience:         rec.Experience,
			MatchesPlayed:      rec.MatchesPlayed,
			MatchesWon:         rec.MatchesWon,
			LastAttendanceDate: rec.LastAttendanceDate,
		}
	}

	log.WithFields(log.Fields{
		"path":     s.path,
		"accounts": len(out),
	}).Info("Loaded accounts from file")
	return out, nil
}

// Save merges the given accounts into the document and rewrites it
func (s *FileAccountStore) Save(ctx context.Context, accounts []*models.UserAccount) error {
	if len(accounts) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if err := s.readLocked(); err != nil {
			return err
		}
	}

	next := make(map[string]fileRecord, len(s.records)+len(accounts))
	for key, rec := range s.records {
		next[key] = rec
	}
	for _, acc := range accounts {
		next[strconv.FormatInt(acc.UserID, 10)] = fileRecord{
			Balance:            acc.Balance,
			Experience:         acc.Experience,
			MatchesPlayed:      acc.MatchesPlayed,
			MatchesWon:         acc.MatchesWon,
			LastAttendanceDate: acc.LastAttendanceDate,
		}
	}

	if err := s.writeLocked(next); err != nil {
		return err
	}
	s.records = next
	return nil
}

func (s *FileAccountStore) readLocked() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.records = make(map[string]fileRecord)
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	records := make(map[string]fileRecord)
	if len(data) > 0 {
		if err := sonic.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("failed to parse %s: %w", s.path, err)
		}
	}
	s.records = records
	s.loaded = true
	return nil
}

func (s *FileAccountStore) writeLocked(records map[string]fileRecord) error {
	data, err := sonic.ConfigStd.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode accounts: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write accounts: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync accounts: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
