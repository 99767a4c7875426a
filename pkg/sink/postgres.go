package sink

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/courtside-labs/crm-sync/pkg/common/logger"
	"github.com/courtside-labs/crm-sync/pkg/common/models"
)

const insertBatchSize = 500

// PostgresSink replaces the customers table through an injected gorm handle.
type PostgresSink struct {
	db  *gorm.DB
	loc *time.Location
}

func NewPostgresSink(db *gorm.DB, loc *time.Location) *PostgresSink {
	return &PostgresSink{db: db, loc: loc}
}

func (s *PostgresSink) Name() string {
	return "postgres"
}

func (s *PostgresSink) AutoMigrate() error {
	return s.db.AutoMigrate(&models.CanonicalCustomerRecord{})
}

func (s *PostgresSink) Load(ctx context.Context, records []models.CanonicalCustomerRecord) (string, error) {
	batchID := NewBatchID(s.loc)
	stampBatch(records, batchID)

	// One transaction around delete+insert; the generic contract does not
	// promise this, so callers of other adapters still carry the
	// documented transient-empty window.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.CanonicalCustomerRecord{}).Count(&count).Error; err != nil {
			return SinkWriteError{Sink: s.Name(), Op: "count existing rows", Err: err}
		}

		if count > 0 {
			logger.Log.WithField("rows", count).Info("Truncating existing customer rows")
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
				Delete(&models.CanonicalCustomerRecord{}).Error; err != nil {
				return SinkWriteError{Sink: s.Name(), Op: "delete existing rows", Err: err}
			}
		}

		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&records, insertBatchSize).Error; err != nil {
			return SinkWriteError{Sink: s.Name(), Op: "insert records", Err: err}
		}
		return nil
	})
	if err != nil {
		if IsSinkWriteError(err) {
			return "", err
		}
		return "", SinkWriteError{Sink: s.Name(), Op: "load transaction", Err: err}
	}

	logger.Log.WithFields(map[string]interface{}{
		"records":  len(records),
		"batch_id": batchID,
	}).Info("Loaded batch into postgres")
	return batchID, nil
}
