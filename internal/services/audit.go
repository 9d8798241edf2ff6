package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/dietchse/basic-login-ap/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const auditExportBatch = 10000

// AuditExportPrefix is the object key prefix of every audit export.
const AuditExportPrefix = "audit-logs/"

type AuditEntry struct {
	UserID    *uuid.UUID
	SessionID *uuid.UUID
	Action    string
	Details   map[string]interface{}
	IPAddress string
	UserAgent string
}

// ArchiveStore receives audit exports. storage.AuditArchive satisfies it.
type ArchiveStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
}

// AuditService writes security events off the request path. A nil
// *AuditService is valid and records nothing.
type AuditService struct {
	DB      *gorm.DB
	Archive ArchiveStore
	queue   chan models.AuditLog
	pending sync.WaitGroup
}

func NewAuditService(db *gorm.DB, archive ArchiveStore, queueSize int) *AuditService {
	if queueSize <= 0 {
		queueSize = 1000
	}
	s := &AuditService{
		DB:      db,
		Archive: archive,
		queue:   make(chan models.AuditLog, queueSize),
	}
	go s.processQueue()
	return s
}

func (s *AuditService) Record(entry AuditEntry) {
	if s == nil {
		return
	}
	row := models.AuditLog{
		UserID:    entry.UserID,
		SessionID: entry.SessionID,
		Action:    entry.Action,
		Details:   entry.Details,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
		CreatedAt: time.Now().UTC(),
	}

	s.pending.Add(1)
	select {
	case s.queue <- row:
	default:
		s.pending.Done()
		logger.Warn("audit_queue_full", map[string]interface{}{
			"action":  entry.Action,
			"dropped": true,
		})
	}
}

// Flush blocks until every queued entry has been written.
func (s *AuditService) Flush() {
	if s == nil {
		return
	}
	s.pending.Wait()
}

func (s *AuditService) processQueue() {
	for row := range s.queue {
		if err := s.DB.Create(&row).Error; err != nil {
			logger.Error("audit_log_insert_failed", err, map[string]interface{}{
				"action": row.Action,
			})
		}
		s.pending.Done()
	}
}

// ListForUser returns one page of the account's own events, newest first.
func (s *AuditService) ListForUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.AuditLog, int64, error) {
	var total int64
	query := s.DB.WithContext(ctx).Model(&models.AuditLog{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storeErr(err)
	}

	var logs []models.AuditLog
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, 0, storeErr(err)
	}
	return logs, total, nil
}

// RecentForUser returns up to limit of the account's events, newest first.
func (s *AuditService) RecentForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return logs, nil
}

// StartExporter periodically ships new audit rows to the archive as NDJSON
// until ctx is cancelled.
func (s *AuditService) StartExporter(ctx context.Context, interval time.Duration) {
	if s.Archive == nil {
		logger.Info("audit_exporter_disabled", map[string]interface{}{
			"reason": "no archive configured",
		})
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.ExportOnce(ctx); err != nil {
					logger.Error("audit_export_failed", err, nil)
				}
			}
		}
	}()

	logger.Info("audit_exporter_started", map[string]interface{}{
		"interval": interval.String(),
	})
}

// ExportOnce uploads rows created since the last export and advances the
// cursor. It returns how many rows were shipped.
func (s *AuditService) ExportOnce(ctx context.Context) (int, error) {
	if s.Archive == nil {
		return 0, errors.New("no archive configured")
	}

	var cursor models.AuditExportCursor
	err := s.DB.WithContext(ctx).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cursor = models.AuditExportCursor{
			LastExportAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		if err := s.DB.WithContext(ctx).Create(&cursor).Error; err != nil {
			return 0, fmt.Errorf("create export cursor: %w", err)
		}
	} else if err != nil {
		return 0, fmt.Errorf("load export cursor: %w", err)
	}

	var logs []models.AuditLog
	if err := s.DB.WithContext(ctx).Where("created_at > ?", cursor.LastExportAt).
		Order("created_at ASC").
		Limit(auditExportBatch).
		Find(&logs).Error; err != nil {
		return 0, fmt.Errorf("query audit logs: %w", err)
	}
	if len(logs) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, log := range logs {
		if err := enc.Encode(log); err != nil {
			logger.Error("audit_export_encode_failed", err, map[string]interface{}{
				"log_id": log.ID.String(),
			})
		}
	}

	now := time.Now().UTC()
	objectName := fmt.Sprintf("%s%s/%s.ndjson",
		AuditExportPrefix,
		now.Format("2006/01/02"),
		now.Format("15-04-05.000"),
	)
	if err := s.Archive.Upload(ctx, objectName, &buf, int64(buf.Len()), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("upload %s: %w", objectName, err)
	}

	lastCreatedAt := logs[len(logs)-1].CreatedAt
	if err := s.DB.WithContext(ctx).Model(&cursor).Updates(map[string]interface{}{
		"last_export_at": lastCreatedAt,
		"exported_count": gorm.Expr("exported_count + ?", len(logs)),
	}).Error; err != nil {
		return 0, fmt.Errorf("advance export cursor: %w", err)
	}

	logger.Info("audit_export_success", map[string]interface{}{
		"object_name": objectName,
		"count":       len(logs),
	})
	return len(logs), nil
}
