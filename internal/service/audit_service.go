package service

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"profiledrive/internal/domain"
	"profiledrive/internal/metrics"
	"profiledrive/internal/notify"
	"profiledrive/internal/service/s3"
)

const (
	NotificationSubject  = "Marks Card Updated"
	changeRecordSchemaID = "inmemory://change_record.json"
)

//go:embed schemas/change_record.json
var changeRecordSchema []byte

type AuditConfig struct {
	Bucket string
	Prefix string
	Topic  string
}

// AuditLogger пишет неизменяемую запись об изменении документа и рассылает уведомление.
// Этапы выполняются строго по очереди: сначала запись, затем уведомление.
type AuditLogger struct {
	store     s3.ObjectStore
	publisher notify.Publisher
	cfg       AuditConfig
	schema    *jsonschema.Schema
	metrics   metrics.Metrics
	logger    *slog.Logger
	newID     func() uuid.UUID
}

var _ ChangeRecorder = (*AuditLogger)(nil)

func NewAuditLogger(store s3.ObjectStore, publisher notify.Publisher, cfg AuditConfig, m metrics.Metrics) (*AuditLogger, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("audit log bucket is required")
	}
	if publisher == nil {
		publisher = notify.Noop{}
	}
	if m == nil {
		m = metrics.Noop{}
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(changeRecordSchemaID, bytes.NewReader(changeRecordSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(changeRecordSchemaID)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &AuditLogger{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		schema:    schema,
		metrics:   m,
		logger:    slog.Default().With("component", "audit"),
		newID:     uuid.New,
	}, nil
}

// RecordChange возвращает *LogFailure, если запись не удалась.
// Сбой уведомления ошибкой не считается: событие возвращается с Notified=false.
func (a *AuditLogger) RecordChange(ctx context.Context, ownerID, subType string, ts time.Time) (*domain.ChangeEvent, error) {
	ev := &domain.ChangeEvent{
		ID:        a.newID(),
		OwnerID:   ownerID,
		SubType:   subType,
		Timestamp: ts.UTC(),
	}
	ev.Key = domain.PartitionPath(a.cfg.Prefix, ev.Timestamp, ev.ID)

	payload, err := a.encode(ev)
	if err != nil {
		a.metrics.IncAuditFailure(string(LogStageWrite))
		return nil, &LogFailure{Stage: LogStageWrite, Err: err}
	}

	loc := domain.Location{Bucket: a.cfg.Bucket, Key: ev.Key}
	if err := a.store.Put(ctx, loc, payload, "application/json"); err != nil {
		a.metrics.IncAuditFailure(string(LogStageWrite))
		a.logger.Error("failed to write change record", "owner_id", ownerID, "type", subType, "error", err)
		return nil, &LogFailure{Stage: LogStageWrite, Err: err}
	}

	if err := a.publisher.Publish(ctx, a.cfg.Topic, payload, NotificationSubject); err != nil {
		a.metrics.IncAuditFailure(string(LogStageNotify))
		a.logger.Warn("failed to publish change notification", "owner_id", ownerID, "key", ev.Key, "error", err)
		return ev, nil
	}

	ev.Notified = true
	a.logger.Info("change recorded", "owner_id", ownerID, "type", subType, "key", ev.Key)
	return ev, nil
}

func (a *AuditLogger) encode(ev *domain.ChangeEvent) ([]byte, error) {
	payload, err := json.Marshal(ev.Record())
	if err != nil {
		return nil, fmt.Errorf("marshal change record: %w", err)
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode change record: %w", err)
	}
	if err := a.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("change record validation failed: %w", err)
	}
	return payload, nil
}
