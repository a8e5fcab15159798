package identity

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStorage() *memStorage { return &memStorage{data: make(map[string][]byte)} }

func (m *memStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStorage) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func TestInitGeneratesAndPersistsKey(t *testing.T) {
	storage := newMemStorage()
	store := NewStore(storage, nil)

	require.NoError(t, store.Init(context.Background()))
	pair, err := store.GetKeyPair()
	require.NoError(t, err)
	assert.NotNil(t, pair.PrivateKey())
	assert.NotNil(t, pair.PublicKey())

	raw, ok, err := storage.Get(context.Background(), StorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, raw)
}

func TestInitReloadsPersistedKey(t *testing.T) {
	storage := newMemStorage()
	first := NewStore(storage, nil)
	require.NoError(t, first.Init(context.Background()))
	firstPair, err := first.GetKeyPair()
	require.NoError(t, err)

	second := NewStore(storage, nil)
	require.NoError(t, second.Init(context.Background()))
	secondPair, err := second.GetKeyPair()
	require.NoError(t, err)

	assert.Equal(t, firstPair.SerializedPublicKey(), secondPair.SerializedPublicKey())
}

func TestGetKeyPairBeforeInitFails(t *testing.T) {
	store := NewStore(newMemStorage(), nil)
	_, err := store.GetKeyPair()
	assert.Error(t, err)
}

func TestDeviceIDStableForSameKey(t *testing.T) {
	storage := newMemStorage()
	store := NewStore(storage, nil)
	require.NoError(t, store.Init(context.Background()))
	pair, err := store.GetKeyPair()
	require.NoError(t, err)

	id1, err := DeviceID(pair)
	require.NoError(t, err)
	id2, err := DeviceID(pair)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64) // hex(sha256) is 32 bytes -> 64 hex chars
}

func TestDeviceIDDiffersAcrossKeys(t *testing.T) {
	storeA := NewStore(newMemStorage(), nil)
	require.NoError(t, storeA.Init(context.Background()))
	pairA, err := storeA.GetKeyPair()
	require.NoError(t, err)

	storeB := NewStore(newMemStorage(), nil)
	require.NoError(t, storeB.Init(context.Background()))
	pairB, err := storeB.GetKeyPair()
	require.NoError(t, err)

	idA, err := DeviceID(pairA)
	require.NoError(t, err)
	idB, err := DeviceID(pairB)
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)
}
