// Package audit persists relationship transitions to audit_logs.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kasuganosora/socialgraph/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Actions recorded by the relationship engine.
const (
	ActionRequestCreated   = "friend_request.created"
	ActionRequestAccepted  = "friend_request.accepted"
	ActionRequestRejected  = "friend_request.rejected"
	ActionRequestCancelled = "friend_request.cancelled"
	ActionRequestExpired   = "friend_request.expired"
	ActionFriendRemoved    = "friendship.removed"
	ActionBlocked          = "block.created"
	ActionUnblocked        = "block.removed"
)

// Entry holds one transition to be logged.
type Entry struct {
	TraceID   string
	ActorID   string
	SubjectID string
	Action    string
	RequestID string
	Detail    interface{}
}

const (
	queueSize = 1024
	batchSize = 100
)

// Service logs audit entries asynchronously in batches.
type Service struct {
	db     *gorm.DB
	ch     chan *model.AuditLog
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger
	now    func() time.Time
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.AuditLog, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an audit entry for async DB write. It never blocks; entries
// are dropped with a warning when the queue is full.
func (svc *Service) Log(entry Entry) {
	var detail datatypes.JSON
	if entry.Detail != nil {
		raw, err := json.Marshal(entry.Detail)
		if err != nil {
			svc.logger.Warn("audit detail not encodable", zap.String("action", entry.Action), zap.Error(err))
		} else {
			detail = datatypes.JSON(raw)
		}
	}
	record := &model.AuditLog{
		TraceID:   entry.TraceID,
		ActorID:   entry.ActorID,
		SubjectID: entry.SubjectID,
		Action:    entry.Action,
		RequestID: entry.RequestID,
		Detail:    detail,
		CreatedAt: svc.now(),
	}
	select {
	case <-svc.stopCh:
		return
	default:
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.once.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			// Drain remaining entries.
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
