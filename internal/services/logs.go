package services

import (
	"context"
	"fmt"
	"log"

	"devicegate/config"
	"devicegate/internal/kv"
	"devicegate/internal/models"
)

// LogService appends to the auth and activity log stores and reads the auth
// trail back. Appends return an error for the caller to discard deliberately:
// both record operations are best-effort by contract and must never fail the
// primary request.
type LogService struct {
	store             kv.Store
	authLogsTable     string
	activityLogsTable string
}

func NewLogService(store kv.Store, cfg *config.Config) *LogService {
	return &LogService{
		store:             store,
		authLogsTable:     cfg.AuthLogsTable,
		activityLogsTable: cfg.ActivityLogsTable,
	}
}

// RecordAuthAttempt appends one auth log entry. The failure is logged
// server-side here; the returned error carries it for the best-effort
// discard at the call site.
func (s *LogService) RecordAuthAttempt(ctx context.Context, entry *models.AuthLogEntry) error {
	key := kv.Key{Partition: entry.UserID, Sort: entry.Timestamp}
	if err := s.store.Put(ctx, s.authLogsTable, key, entry.ToItem(), false); err != nil {
		log.Printf("Failed to record auth attempt for %s: %v", entry.UserID, err)
		return fmt.Errorf("record auth attempt: %w", err)
	}
	return nil
}

// RecordActivity appends one activity log entry, same failure policy as
// RecordAuthAttempt.
func (s *LogService) RecordActivity(ctx context.Context, entry *models.ActivityLogEntry) error {
	key := kv.Key{Partition: entry.UserID, Sort: entry.Timestamp}
	if err := s.store.Put(ctx, s.activityLogsTable, key, entry.ToItem(), false); err != nil {
		log.Printf("Failed to record activity for %s: %v", entry.UserID, err)
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

// FetchAuthLogs returns every auth log entry for the user in the store's
// native key order. Unlike the appends this read is the response payload, so
// store errors propagate.
func (s *LogService) FetchAuthLogs(ctx context.Context, userID string) ([]*models.AuthLogEntry, error) {
	items, err := s.store.Query(ctx, s.authLogsTable, userID)
	if err != nil {
		return nil, err
	}

	entries := make([]*models.AuthLogEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, models.AuthLogEntryFromItem(it))
	}
	return entries, nil
}
