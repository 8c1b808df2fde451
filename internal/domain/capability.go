package domain

import (
	"net/http"
	"time"
)

type Operation string

const (
	OperationUpload   Operation = "upload"
	OperationDownload Operation = "download"
)

// Capability - подписанная ссылка на одну операцию с одним объектом
type Capability struct {
	Operation     Operation   `json:"operation"`
	Method        string      `json:"method"`
	URL           string      `json:"url"`
	Bucket        string      `json:"bucket"`
	Key           string      `json:"key"`
	ContentType   string      `json:"content_type,omitempty"`
	SignedHeaders http.Header `json:"signed_headers,omitempty"`
	ExpiresAt     time.Time   `json:"expires_at"`
}
