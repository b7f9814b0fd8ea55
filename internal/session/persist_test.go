package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArubaIberia/agora/internal/auth"
	"github.com/ArubaIberia/agora/internal/credentials"
)

// countingStore counts Save calls on top of a MapStore.
type countingStore struct {
	*credentials.MapStore
	saves   int
	saveErr error
}

func (c *countingStore) Save(section string, values credentials.Section) error {
	c.saves++
	if c.saveErr != nil {
		return c.saveErr
	}
	return c.MapStore.Save(section, values)
}

func TestRefreshTokenSaverWritesOnlyRotatedTokens(t *testing.T) {
	s, _ := openStub(t, auth.Capabilities{Renew: true})
	store := &countingStore{MapStore: credentials.NewMapStore(nil)}
	save := RefreshTokenSaver(store, "rt-tok-1")

	save(s)
	assert.Zero(t, store.saves, "token unchanged since startup")

	require.NoError(t, s.Refresh(context.Background()))
	save(s)
	save(s)
	assert.Equal(t, 1, store.saves, "each rotated token is written once")

	require.NoError(t, s.Refresh(context.Background()))
	save(s)
	assert.Equal(t, 2, store.saves)

	stored, err := store.Defaults("stub")
	require.NoError(t, err)
	assert.Equal(t, "rt-tok-3", stored[credentials.KeyRefreshToken])
}

func TestRefreshTokenSaverRetriesAfterFailedSave(t *testing.T) {
	s, _ := openStub(t, auth.Capabilities{Renew: true})
	store := &countingStore{MapStore: credentials.NewMapStore(nil), saveErr: errors.New("read-only file system")}
	save := RefreshTokenSaver(store, "")

	save(s)
	store.saveErr = nil
	save(s)

	assert.Equal(t, 2, store.saves)
	stored, err := store.Defaults("stub")
	require.NoError(t, err)
	assert.Equal(t, "rt-tok-1", stored[credentials.KeyRefreshToken])
}
