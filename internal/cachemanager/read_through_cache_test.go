package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCacheManager[K comparable, V any] struct {
	mock.Mock
}

func newMockCacheManager[K comparable, V any](t *testing.T) *mockCacheManager[K, V] {
	m := &mockCacheManager[K, V]{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *mockCacheManager[K, V]) Get(ctx context.Context, key K) (V, bool) {
	args := m.Called(ctx, key)
	return args.Get(0).(V), args.Bool(1)
}

func (m *mockCacheManager[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	args := m.Called(ctx, key, ttl)
	return args.Get(0).(V), args.Bool(1)
}

func (m *mockCacheManager[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	m.Called(ctx, key, value, ttl)
}

func (m *mockCacheManager[K, V]) Delete(ctx context.Context, keys ...K) error {
	return m.Called(ctx, keys).Error(0)
}

func (m *mockCacheManager[K, V]) Flush(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockCacheManager[K, V]) Len() int {
	return m.Called().Int(0)
}

type lookup struct {
	Place string
}

func lookupFn(calls *int) func(context.Context, lookup) (coordinates, error) {
	return func(_ context.Context, in lookup) (coordinates, error) {
		*calls++
		if in.Place == "" {
			return coordinates{}, errors.New("empty place")
		}
		return coordinates{Latitude: 1, Longitude: 2}, nil
	}
}

func TestReadThroughCache_SkipCache(t *testing.T) {
	manager := newMockCacheManager[string, coordinates](t)
	calls := 0
	rtc := NewReadThroughCache[string, coordinates, lookup](manager, lookupFn(&calls), true)

	got, err := rtc.Get(context.Background(), "paris", lookup{Place: "paris"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, coordinates{Latitude: 1, Longitude: 2}, got)

	_, err = rtc.GetWithRefresh(context.Background(), "paris", lookup{Place: "paris"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestReadThroughCache_Get_Hit(t *testing.T) {
	manager := newMockCacheManager[string, coordinates](t)
	manager.On("Get", mock.Anything, "paris").Return(coordinates{Latitude: 48.85}, true)
	calls := 0
	rtc := NewReadThroughCache[string, coordinates, lookup](manager, lookupFn(&calls), false)

	got, err := rtc.Get(context.Background(), "paris", lookup{Place: "paris"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 48.85, got.Latitude)
	require.Zero(t, calls)
}

func TestReadThroughCache_Get_MissStores(t *testing.T) {
	manager := newMockCacheManager[string, coordinates](t)
	manager.On("Get", mock.Anything, "paris").Return(coordinates{}, false)
	manager.On("Set", mock.Anything, "paris", coordinates{Latitude: 1, Longitude: 2}, time.Minute).Return()
	calls := 0
	rtc := NewReadThroughCache[string, coordinates, lookup](manager, lookupFn(&calls), false)

	_, err := rtc.Get(context.Background(), "paris", lookup{Place: "paris"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestReadThroughCache_Get_ErrorNotStored(t *testing.T) {
	manager := newMockCacheManager[string, coordinates](t)
	manager.On("Get", mock.Anything, "").Return(coordinates{}, false)
	calls := 0
	rtc := NewReadThroughCache[string, coordinates, lookup](manager, lookupFn(&calls), false)

	_, err := rtc.Get(context.Background(), "", lookup{}, time.Minute)
	require.Error(t, err)
	manager.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReadThroughCache_GetWithRefresh_Hit(t *testing.T) {
	manager := newMockCacheManager[string, coordinates](t)
	manager.On("GetWithRefresh", mock.Anything, "paris", time.Hour).Return(coordinates{Latitude: 3}, true)
	calls := 0
	rtc := NewReadThroughCache[string, coordinates, lookup](manager, lookupFn(&calls), false)

	got, err := rtc.GetWithRefresh(context.Background(), "paris", lookup{Place: "paris"}, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 3.0, got.Latitude)
	require.Zero(t, calls)
}

func TestReadThroughCache_StoreIf(t *testing.T) {
	cache := NewInMemoryCacheManager[string, coordinates]("geocode", DefaultExpiration, DefaultCleanupInterval)
	calls := 0
	rtc := NewReadThroughCache[string, coordinates, lookup](cache, lookupFn(&calls), false).
		StoreIf(func(c coordinates) bool { return c.Latitude != 1 })

	for i := 0; i < 2; i++ {
		_, err := rtc.Get(context.Background(), "paris", lookup{Place: "paris"}, time.Minute)
		require.NoError(t, err)
	}
	require.Equal(t, 2, calls)
	require.Zero(t, cache.Len())
}
