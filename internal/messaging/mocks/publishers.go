package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"tta-server/internal/messaging"
	"tta-server/internal/models"
)

// Mock TaskPublisher
type TaskPublisher struct {
	mock.Mock
}

func (m *TaskPublisher) PublishNarrativeTask(ctx context.Context, payload messaging.NarrativeTaskPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

// Mock ResultPublisher
type ResultPublisher struct {
	mock.Mock
}

func (m *ResultPublisher) PublishNarrativeResult(ctx context.Context, payload messaging.NarrativeResultPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

// Mock ClientUpdatePublisher
type ClientUpdatePublisher struct {
	mock.Mock
}

func (m *ClientUpdatePublisher) PublishClientUpdate(ctx context.Context, payload models.ClientSessionUpdate) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}
