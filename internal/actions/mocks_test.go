package actions_test

import (
	"context"
	"sync"

	"basegraph.app/pagebot/internal/brain"
	"basegraph.app/pagebot/internal/domain"
	"basegraph.app/pagebot/internal/model"
)

type postedAction struct {
	Type     domain.TaskType
	TargetID string
	Message  string
}

type mockPlatform struct {
	fetchItemFn      func(ctx context.Context, creds domain.Credentials, itemID string) (domain.Item, error)
	fetchContainerFn func(ctx context.Context, creds domain.Credentials, postID string) (domain.Container, error)
	postActionFn     func(ctx context.Context, creds domain.Credentials, taskType domain.TaskType, targetID, message string) (string, error)

	mu      sync.Mutex
	fetched []string
	posted  []postedAction
}

func (m *mockPlatform) FetchItem(ctx context.Context, creds domain.Credentials, itemID string) (domain.Item, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, itemID)
	m.mu.Unlock()
	if m.fetchItemFn != nil {
		return m.fetchItemFn(ctx, creds, itemID)
	}
	return domain.Item{ID: itemID, AuthorID: "u1", Text: "fetched " + itemID}, nil
}

func (m *mockPlatform) FetchContainer(ctx context.Context, creds domain.Credentials, postID string) (domain.Container, error) {
	if m.fetchContainerFn != nil {
		return m.fetchContainerFn(ctx, creds, postID)
	}
	return domain.Container{ID: postID, Caption: "caption of " + postID}, nil
}

func (m *mockPlatform) PostAction(ctx context.Context, creds domain.Credentials, taskType domain.TaskType, targetID, message string) (string, error) {
	m.mu.Lock()
	m.posted = append(m.posted, postedAction{Type: taskType, TargetID: targetID, Message: message})
	m.mu.Unlock()
	if m.postActionFn != nil {
		return m.postActionFn(ctx, creds, taskType, targetID, message)
	}
	if taskType == domain.TaskTypeAcknowledge {
		return targetID, nil
	}
	return targetID + "_reply", nil
}

func (m *mockPlatform) Posted() []postedAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]postedAction(nil), m.posted...)
}

type mockWriter struct {
	replyFn   func(ctx context.Context, in brain.ReplyInput) (string, error)
	openingFn func(ctx context.Context, in brain.OpeningInput) (string, error)
	replies   []brain.ReplyInput
}

func (m *mockWriter) Reply(ctx context.Context, in brain.ReplyInput) (string, error) {
	m.replies = append(m.replies, in)
	if m.replyFn != nil {
		return m.replyFn(ctx, in)
	}
	return "Glad it helped!", nil
}

func (m *mockWriter) Opening(ctx context.Context, in brain.OpeningInput) (string, error) {
	if m.openingFn != nil {
		return m.openingFn(ctx, in)
	}
	return "What do you think?", nil
}

type mockActionLogStore struct {
	createFn func(ctx context.Context, log *model.ActionLog) error

	mu      sync.Mutex
	created []model.ActionLog
}

func (m *mockActionLogStore) Create(ctx context.Context, log *model.ActionLog) error {
	m.mu.Lock()
	m.created = append(m.created, *log)
	m.mu.Unlock()
	if m.createFn != nil {
		return m.createFn(ctx, log)
	}
	return nil
}

func (m *mockActionLogStore) GetByID(context.Context, int64) (*model.ActionLog, error) {
	return nil, nil
}

func (m *mockActionLogStore) ListByTenant(context.Context, string, int32) ([]model.ActionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ActionLog(nil), m.created...), nil
}
