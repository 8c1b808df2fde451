package notify

import (
	"context"
	"errors"
)

var (
	ErrEmptyTopic   = errors.New("notification topic is required")
	ErrNilPublisher = errors.New("publisher not initialized")
)

// Publisher доставляет уведомление об изменении в канал рассылки
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, subject string) error
}

// Noop ничего не отправляет; используется, когда канал не настроен
type Noop struct{}

func (Noop) Publish(context.Context, string, []byte, string) error { return nil }
