package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/vovakirdan/projectchat-server/internal/store"
)

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) AppendMessage(ctx context.Context, content, projectID, userID string) (*store.Message, error) {
	args := m.Called(ctx, content, projectID, userID)
	var msg *store.Message
	if val := args.Get(0); val != nil {
		msg = val.(*store.Message)
	}
	return msg, args.Error(1)
}

func (m *StoreMock) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	args := m.Called(ctx, projectID, userID)
	return args.Bool(0), args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}
