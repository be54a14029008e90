// Package mocks provides test doubles for the catalog client.
package mocks

import (
	"context"

	catalog "github.com/sells-group/district-poi/pkg/catalog"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// SearchItems provides a mock function with given fields: ctx, params
func (_m *MockClient) SearchItems(ctx context.Context, params catalog.SearchParams) (*catalog.Page, error) {
	ret := _m.Called(ctx, params)

	if len(ret) == 0 {
		panic("no return value specified for SearchItems")
	}

	var r0 *catalog.Page
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, catalog.SearchParams) (*catalog.Page, error)); ok {
		return rf(ctx, params)
	}
	if rf, ok := ret.Get(0).(func(context.Context, catalog.SearchParams) *catalog.Page); ok {
		r0 = rf(ctx, params)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*catalog.Page)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, catalog.SearchParams) error); ok {
		r1 = rf(ctx, params)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// ListRubrics provides a mock function with given fields: ctx, regionID
func (_m *MockClient) ListRubrics(ctx context.Context, regionID string) ([]catalog.RubricEntry, error) {
	ret := _m.Called(ctx, regionID)

	if len(ret) == 0 {
		panic("no return value specified for ListRubrics")
	}

	var r0 []catalog.RubricEntry
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) ([]catalog.RubricEntry, error)); ok {
		return rf(ctx, regionID)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) []catalog.RubricEntry); ok {
		r0 = rf(ctx, regionID)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]catalog.RubricEntry)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, regionID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
