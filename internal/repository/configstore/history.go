package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopfloor/umpire/internal/config"
	domain "github.com/shopfloor/umpire/internal/domain/bundle"
)

// historyFileName holds the deployment audit trail.
const historyFileName = "history.json"

// historyRecord is the on-disk form of a deployment record.
type historyRecord struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Hostname  string    `json:"hostname,omitempty"`
	Username  string    `json:"username,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// History returns deployment records in chronological order.
func (s *Store) History(_ context.Context) ([]*domain.DeploymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.readHistory()
	if err != nil {
		return nil, err
	}

	records := make([]*domain.DeploymentRecord, 0, len(stored))

	for _, record := range stored {
		var actor *domain.Actor
		if record.Hostname != "" || record.Username != "" {
			actor = &domain.Actor{
				Hostname: record.Hostname,
				Username: record.Username,
			}
		}

		records = append(records, &domain.DeploymentRecord{
			Version:   record.Version,
			Timestamp: record.Timestamp,
			Actor:     actor,
			Note:      record.Note,
		})
	}

	return records, nil
}

// appendHistory adds a record to the audit trail. Callers hold s.mu.
func (s *Store) appendHistory(record *domain.DeploymentRecord) error {
	stored, err := s.readHistory()
	if err != nil {
		return err
	}

	next := historyRecord{
		Version:   record.Version,
		Timestamp: record.Timestamp,
		Note:      record.Note,
	}

	if record.Actor != nil {
		next.Hostname = record.Actor.Hostname
		next.Username = record.Actor.Username
	}

	stored = append(stored, next)

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	if err := os.WriteFile(filepath.Join(s.root, historyFileName), data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write history: %w", err)
	}

	return nil
}

// readHistory loads the audit trail, tolerating a missing file.
func (s *Store) readHistory() ([]historyRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.root, historyFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("read history: %w", err)
	}

	var stored []historyRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	return stored, nil
}
