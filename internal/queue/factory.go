package queue

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/questdeck/questdeck/internal/domain"
)

// Backend selects the storage kind for all topics.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
)

func (b Backend) IsValid() bool {
	return b == BackendMemory || b == BackendPostgres
}

// TopicQueue is the full per-topic surface: every backend implements the
// base contract plus both extensions, so one constructed queue can serve
// whichever role its topic needs.
type TopicQueue[T Payload] interface {
	ProcessingQueue[T]
	ApprovalQueue[T]
}

// Settings carries backend selection and per-topic batch sizes. Pool is
// required only for the postgres backend.
type Settings struct {
	Backend        Backend
	Pool           *pgxpool.Pool
	LLMBatchSize   int
	AssetBatchSize int
}

// Queues bundles the five topic queues the service runs on.
type Queues struct {
	PlayerActions   TopicQueue[domain.PlayerAction]
	LLMRequests     TopicQueue[domain.LLMRequest]
	DMActions       TopicQueue[domain.DMAction]
	AssetGeneration TopicQueue[domain.AssetRequest]
	Approvals       TopicQueue[domain.ApprovalItem]
}

// Open constructs every topic queue against the configured backend.
// Topic-to-backend selection and batch sizes are configuration-time
// concerns; nothing else in the queue knows about them.
func Open(set Settings) (*Queues, error) {
	playerActions, err := newTopic[domain.PlayerAction](set, TopicPlayerActions, 1)
	if err != nil {
		return nil, err
	}
	llmRequests, err := newTopic[domain.LLMRequest](set, TopicLLMRequests, set.LLMBatchSize)
	if err != nil {
		return nil, err
	}
	dmActions, err := newTopic[domain.DMAction](set, TopicDMActions, 1)
	if err != nil {
		return nil, err
	}
	assetGeneration, err := newTopic[domain.AssetRequest](set, TopicAssetGeneration, set.AssetBatchSize)
	if err != nil {
		return nil, err
	}
	approvals, err := newTopic[domain.ApprovalItem](set, TopicApprovals, 1)
	if err != nil {
		return nil, err
	}

	return &Queues{
		PlayerActions:   playerActions,
		LLMRequests:     llmRequests,
		DMActions:       dmActions,
		AssetGeneration: assetGeneration,
		Approvals:       approvals,
	}, nil
}

func newTopic[T Payload](set Settings, topic string, batchSize int) (TopicQueue[T], error) {
	switch set.Backend {
	case BackendMemory:
		return NewMemory[T](topic, batchSize), nil
	case BackendPostgres:
		if set.Pool == nil {
			return nil, fmt.Errorf("topic %s: postgres backend requires a connection pool", topic)
		}
		return NewPostgres[T](set.Pool, topic, batchSize)
	default:
		return nil, fmt.Errorf("topic %s: unsupported queue backend %q", topic, set.Backend)
	}
}
