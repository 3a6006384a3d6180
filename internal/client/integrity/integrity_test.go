package integrity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/client/hostkey"
	"github.com/dmitrijs2005/gophvault/internal/client/repositories/kv"
	"github.com/dmitrijs2005/gophvault/internal/clock"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, protector hostkey.Protector) (*Store, kv.Store) {
	t.Helper()
	store, err := kv.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return New(store, protector, clk, logging.Nop()), store
}

func rawRecord(t *testing.T, store kv.Store, ref Ref) Record {
	t.Helper()
	raw, err := store.Get(context.Background(), ref.Namespace, ref.Key)
	require.NoError(t, err)
	var rec Record
	require.NoError(t, json.Unmarshal(raw, &rec))
	return rec
}

func writeRecord(t *testing.T, store kv.Store, ref Ref, rec Record) {
	t.Helper()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), ref.Namespace, ref.Key, raw))
}

func TestSaveLoadProtected_RoundTrip(t *testing.T) {
	s, store := setup(t, nil)
	ctx := context.Background()

	require.NoError(t, s.SaveProtected(ctx, RefVault, "salt:iv:ct"))

	data, found, err := s.LoadProtected(ctx, RefVault)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "salt:iv:ct", data)

	rec := rawRecord(t, store, RefVault)
	assert.Equal(t, "salt:iv:ct", rec.Data)
	assert.Len(t, rec.MAC, 64)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(), rec.Timestamp)
}

func TestLoadProtected_Absent(t *testing.T) {
	s, _ := setup(t, nil)
	data, found, err := s.LoadProtected(context.Background(), RefSecurityConfig)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, data)
}

func flipFirstHexDigit(s string) string {
	if s[0] == '0' {
		return "1" + s[1:]
	}
	return "0" + s[1:]
}

func TestLoadProtected_DetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Record)
	}{
		{"data changed", func(r *Record) { r.Data = "attacker:data:here" }},
		{"mac changed", func(r *Record) { r.MAC = flipFirstHexDigit(r.MAC) }},
		{"mac not hex", func(r *Record) { r.MAC = "zz" }},
		{"mac emptied", func(r *Record) { r.MAC = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := setup(t, nil)
			ctx := context.Background()
			require.NoError(t, s.SaveProtected(ctx, RefVault, "original"))

			rec := rawRecord(t, store, RefVault)
			tt.mutate(&rec)
			writeRecord(t, store, RefVault, rec)

			_, _, err := s.LoadProtected(ctx, RefVault)
			require.ErrorIs(t, err, common.ErrIntegrityViolation)

			// the record is left in place for inspection
			raw, err := store.Get(ctx, RefVault.Namespace, RefVault.Key)
			require.NoError(t, err)
			assert.NotNil(t, raw)
		})
	}
}

func TestLoadProtected_PartialRecordIsViolation(t *testing.T) {
	s, store := setup(t, nil)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, RefVault.Namespace, RefVault.Key, []byte(`{"data":"x"}`)))

	_, _, err := s.LoadProtected(ctx, RefVault)
	require.ErrorIs(t, err, common.ErrIntegrityViolation)
}

func TestLoadProtected_LegacyRawValue(t *testing.T) {
	s, store := setup(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, RefVault.Namespace, RefVault.Key, []byte("c2FsdA==:aXY=:Y3Q=")))
	data, found, err := s.LoadProtected(ctx, RefVault)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "c2FsdA==:aXY=:Y3Q=", data)

	legacyConfig := `{"password_hash":"abc"}`
	require.NoError(t, store.Put(ctx, RefSecurityConfig.Namespace, RefSecurityConfig.Key, []byte(legacyConfig)))
	data, found, err = s.LoadProtected(ctx, RefSecurityConfig)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, legacyConfig, data)
}

func TestIntegrityKey_SharedAcrossInstances(t *testing.T) {
	s1, store := setup(t, nil)
	ctx := context.Background()
	require.NoError(t, s1.SaveProtected(ctx, RefVault, "payload"))

	s2 := New(store, nil, clock.Real(), logging.Nop())
	data, _, err := s2.LoadProtected(ctx, RefVault)
	require.NoError(t, err)
	assert.Equal(t, "payload", data)
}

func TestIntegrityKey_WrappedByHostKey(t *testing.T) {
	protector, err := hostkey.LoadOrCreate(filepath.Join(t.TempDir(), "host.age"))
	require.NoError(t, err)

	s, store := setup(t, protector)
	ctx := context.Background()
	require.NoError(t, s.SaveProtected(ctx, RefVault, "payload"))

	stored, err := store.Get(ctx, common.NamespaceSettings, integrityKeyName)
	require.NoError(t, err)
	_, err = base64.StdEncoding.DecodeString(string(stored))
	require.NoError(t, err)
	assert.Greater(t, len(stored), 100, "age armor is longer than a raw base64 key")

	s.Forget()
	data, _, err := s.LoadProtected(ctx, RefVault)
	require.NoError(t, err)
	assert.Equal(t, "payload", data)
}

type failingProtector struct{}

func (failingProtector) Wrap([]byte) (string, error)   { return "", errors.New("no host key") }
func (failingProtector) Unwrap(string) ([]byte, error) { return nil, hostkey.ErrUnwrap }

func TestIntegrityKey_UnwrapFailureFallsBackToStoredForm(t *testing.T) {
	// written by an installation without a host key
	plain, store := setup(t, nil)
	ctx := context.Background()
	require.NoError(t, plain.SaveProtected(ctx, RefVault, "payload"))

	withHost := New(store, failingProtector{}, clock.Real(), logging.Nop())
	data, _, err := withHost.LoadProtected(ctx, RefVault)
	require.NoError(t, err)
	assert.Equal(t, "payload", data)
}

func TestIntegrityKey_WrapFailureStoresUnwrapped(t *testing.T) {
	s, store := setup(t, failingProtector{})
	ctx := context.Background()
	require.NoError(t, s.SaveProtected(ctx, RefVault, "payload"))

	stored, err := store.Get(ctx, common.NamespaceSettings, integrityKeyName)
	require.NoError(t, err)
	key, err := base64.StdEncoding.DecodeString(string(stored))
	require.NoError(t, err)
	assert.Len(t, key, integrityKeySize)
}

func TestIntegrityKey_Unreadable(t *testing.T) {
	s, store := setup(t, nil)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, common.NamespaceSettings, integrityKeyName, []byte("!!!")))
	require.NoError(t, store.Put(ctx, RefVault.Namespace, RefVault.Key, []byte(`{"data":"x","mac":"00"}`)))

	_, _, err := s.LoadProtected(ctx, RefVault)
	require.ErrorIs(t, err, common.ErrIntegrityViolation)
}

func TestDecoy_Unprotected(t *testing.T) {
	s, store := setup(t, nil)
	ctx := context.Background()

	_, found, err := s.LoadDecoy(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveDecoy(ctx, "decoy-blob"))
	raw, err := store.Get(ctx, common.NamespaceDecoy, decoyKey)
	require.NoError(t, err)
	assert.Equal(t, "decoy-blob", string(raw), "stored verbatim, no record wrapper")

	require.NoError(t, store.Put(ctx, common.NamespaceDecoy, decoyKey, []byte("edited")))
	blob, found, err := s.LoadDecoy(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "edited", blob)

	require.NoError(t, s.DeleteDecoy(ctx))
	_, found, err = s.LoadDecoy(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSaveLoadJSON(t *testing.T) {
	s, store := setup(t, nil)
	ctx := context.Background()

	type payload struct {
		Hash  string `json:"hash"`
		Count int    `json:"count"`
	}

	var got payload
	found, err := s.LoadJSON(ctx, RefSecurityConfig, &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveJSON(ctx, RefSecurityConfig, payload{Hash: "h", Count: 2}))
	found, err = s.LoadJSON(ctx, RefSecurityConfig, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Hash: "h", Count: 2}, got)

	require.NoError(t, store.Put(ctx, RefSecurityConfig.Namespace, RefSecurityConfig.Key, []byte(`{"hash":"legacy","count":1}`)))
	found, err = s.LoadJSON(ctx, RefSecurityConfig, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "legacy", got.Hash)

	require.NoError(t, s.SaveProtected(ctx, RefSecurityConfig, "not json"))
	_, err = s.LoadJSON(ctx, RefSecurityConfig, &got)
	assert.ErrorIs(t, err, common.ErrIntegrityViolation)
}
