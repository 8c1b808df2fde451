package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChangeEvent - одна запись журнала изменений документа
type ChangeEvent struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"user_id"`
	SubType   string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Key       string    `json:"key"`
	Notified  bool      `json:"notified"`
}

// ChangeRecord - тело объекта журнала и уведомления
type ChangeRecord struct {
	UserID    string `json:"user_id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// TimestampLayout - ISO-8601 в UTC с миллисекундами
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

func (e *ChangeEvent) Record() ChangeRecord {
	return ChangeRecord{
		UserID:    e.OwnerID,
		Type:      e.SubType,
		Timestamp: e.Timestamp.UTC().Format(TimestampLayout),
	}
}

// PartitionDir возвращает префикс партиции по календарной дате события (UTC)
func PartitionDir(prefix string, ts time.Time) string {
	ts = ts.UTC()
	dir := fmt.Sprintf("year=%04d/month=%02d/day=%02d", ts.Year(), int(ts.Month()), ts.Day())
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return dir
	}
	return prefix + "/" + dir
}

// PartitionPath возвращает полный ключ объекта события
func PartitionPath(prefix string, ts time.Time, id uuid.UUID) string {
	return fmt.Sprintf("%s/event_%s.json", PartitionDir(prefix, ts), id.String())
}
