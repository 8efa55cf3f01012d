package mocks

import (
	"context"
	"sync/atomic"

	"netfinder/internal/model"
)

type MockBackend struct {
	FindRangeFunc func(ctx context.Context, ip uint32) (*model.NetworkRange, error)
	Safe          bool
	Calls         int64
	Closed        int64
}

func (m *MockBackend) FindRange(ctx context.Context, ip uint32) (*model.NetworkRange, error) {
	atomic.AddInt64(&m.Calls, 1)
	return m.FindRangeFunc(ctx, ip)
}

func (m *MockBackend) ConcurrentSafe() bool {
	return m.Safe
}

func (m *MockBackend) Close() error {
	atomic.AddInt64(&m.Closed, 1)
	return nil
}

type MockCache struct {
	GetResultFunc func(ctx context.Context, ip string) (*model.LookupResult, error)
	SetResultFunc func(ctx context.Context, ip string, result *model.LookupResult) error
}

func (m *MockCache) GetResult(ctx context.Context, ip string) (*model.LookupResult, error) {
	return m.GetResultFunc(ctx, ip)
}

func (m *MockCache) SetResult(ctx context.Context, ip string, result *model.LookupResult) error {
	return m.SetResultFunc(ctx, ip, result)
}
