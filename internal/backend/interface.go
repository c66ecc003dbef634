package backend

import (
	"context"

	"iptvprofit/internal/amqp"
	"iptvprofit/internal/ledger"
)

// BackendType names a ledger store implementation.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string { return string(bt) }

// Config selects and configures the ledger store and its change feed.
type Config struct {
	Type         BackendType
	SQLiteDBPath string

	// An empty AMQPURL means no change notifications.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendResult is everything a process needs from its backend. Pinger,
// Publisher and Cleanup stay nil when the backend has no such part.
type BackendResult struct {
	Store     ledger.Store
	Pinger    Pinger
	Publisher *amqp.Client
	Cleanup   func() error
}

type Factory interface {
	CreateBackend(ctx context.Context, cfg Config) (*BackendResult, error)
}
