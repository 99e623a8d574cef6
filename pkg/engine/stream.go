package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultShardCount is the number of shards a new stream is created with.
const DefaultShardCount int32 = 1

// StreamManager creates and destroys the application's stream.
type StreamManager struct {
	streams     StreamService
	waiter      WaitPolicy
	shardCount  int32
	waitTimeout time.Duration
	logger      zerolog.Logger
}

// NewStreamManager creates a stream manager.
func NewStreamManager(streams StreamService, waiter WaitPolicy, shardCount int32, waitTimeout time.Duration, logger zerolog.Logger) *StreamManager {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	return &StreamManager{
		streams:     streams,
		waiter:      waiter,
		shardCount:  shardCount,
		waitTimeout: waitTimeout,
		logger:      logger.With().Str("component", "stream-manager").Logger(),
	}
}

// CreateStream creates the stream, waits for it to become active and
// returns its durable identity. No retry is attempted on any failure.
func (m *StreamManager) CreateStream(ctx context.Context, applicationID string) (StreamHandle, error) {
	name := StreamName(applicationID)

	if err := m.streams.CreateStream(ctx, name, m.shardCount); err != nil {
		return StreamHandle{}, fmt.Errorf("create stream %s: %w", name, err)
	}

	if err := m.waiter.AwaitReady(ctx, ResourceStream, name, m.waitTimeout); err != nil {
		m.logger.Error().Err(err).Str("stream", name).Msg("Stream did not become active")
		return StreamHandle{}, err
	}
	m.logger.Info().Str("stream", name).Msg("Created stream")

	desc, err := m.streams.DescribeStream(ctx, name)
	if err != nil {
		return StreamHandle{}, fmt.Errorf("describe stream %s: %w", name, err)
	}
	if desc.ARN == "" {
		return StreamHandle{}, NewUnavailableError("stream description has no ARN", nil).WithResource(name)
	}

	return StreamHandle{Name: name, ARN: desc.ARN}, nil
}

// DeleteStream force-deletes the stream. A stream that does not exist is
// logged and treated as deleted.
func (m *StreamManager) DeleteStream(ctx context.Context, applicationID string) (StepStatus, error) {
	name := StreamName(applicationID)

	err := m.streams.DeleteStream(ctx, name, true)
	switch {
	case err == nil:
		m.logger.Info().Str("stream", name).Msg("Deleted stream")
		return StepSucceeded, nil
	case IsNotFound(err):
		m.logger.Warn().Err(err).Str("stream", name).Msg("Stream not found, skipping")
		return StepTolerated, nil
	default:
		return StepFailed, fmt.Errorf("delete stream %s: %w", name, err)
	}
}
