// Package integrity persists values with tamper evidence.
//
// Every protected write stores {data, mac, timestamp} where mac is
// HMAC-SHA256 over data under an installation-scoped integrity key. Every
// protected read recomputes the MAC and fails with
// common.ErrIntegrityViolation on mismatch; the store never repairs or
// deletes a bad record.
//
// The integrity key is generated once, exported as base64, wrapped by the
// host protector when one is configured and cached in the settings
// namespace. Values written before the integrity layer existed (raw strings
// rather than records) are returned as is.
//
// The decoy blob used by the duress path is stored without a MAC.
package integrity

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophvault/internal/client/hostkey"
	"github.com/dmitrijs2005/gophvault/internal/client/repositories/kv"
	"github.com/dmitrijs2005/gophvault/internal/clock"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/logging"
)

const (
	integrityKeyName = "integrity_key"
	integrityKeySize = 32
	decoyKey         = "decoy"
)

// Ref addresses a protected value.
type Ref struct {
	Namespace string
	Key       string
}

var (
	RefVault          = Ref{Namespace: common.NamespaceVault, Key: "primary"}
	RefSecurityConfig = Ref{Namespace: common.NamespaceSecurity, Key: "config"}
	RefBiometric      = Ref{Namespace: common.NamespaceSecurity, Key: "biometric_escrow"}
)

func (r Ref) String() string { return r.Namespace + "/" + r.Key }

// Record is the persisted form of a protected value.
type Record struct {
	Data      string `json:"data"`
	MAC       string `json:"mac"`
	Timestamp int64  `json:"timestamp"`
}

type Store struct {
	kv        kv.Store
	protector hostkey.Protector
	clock     clock.Clock
	log       logging.Logger

	mu  sync.Mutex
	key []byte
}

// New builds a Store. protector may be nil, in which case the integrity
// key is kept unwrapped.
func New(store kv.Store, protector hostkey.Protector, clk clock.Clock, log logging.Logger) *Store {
	return &Store{kv: store, protector: protector, clock: clk, log: log.With("component", "integrity")}
}

// SaveProtected writes data under ref together with its MAC.
func (s *Store) SaveProtected(ctx context.Context, ref Ref, data string) error {
	key, err := s.integrityKey(ctx)
	if err != nil {
		return err
	}

	rec := Record{
		Data:      data,
		MAC:       hex.EncodeToString(cryptox.HMAC(key, []byte(data))),
		Timestamp: s.clock.Now().UnixMilli(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", ref, err)
	}
	if err := s.kv.Put(ctx, ref.Namespace, ref.Key, raw); err != nil {
		return fmt.Errorf("save %s: %w", ref, err)
	}
	return nil
}

// LoadProtected returns the data stored under ref. found is false when
// nothing is stored. A MAC mismatch yields common.ErrIntegrityViolation.
func (s *Store) LoadProtected(ctx context.Context, ref Ref) (data string, found bool, err error) {
	raw, err := s.kv.Get(ctx, ref.Namespace, ref.Key)
	if err != nil {
		return "", false, fmt.Errorf("load %s: %w", ref, err)
	}
	if raw == nil {
		return "", false, nil
	}

	rec, isRecord, err := parseRecord(raw)
	if err != nil {
		s.log.Error(ctx, "protected record is malformed", "ref", ref.String())
		return "", false, fmt.Errorf("%w: %s", common.ErrIntegrityViolation, ref)
	}
	if !isRecord {
		s.log.Warn(ctx, "reading value written before integrity protection", "ref", ref.String())
		return string(raw), true, nil
	}

	key, err := s.integrityKey(ctx)
	if err != nil {
		return "", false, err
	}
	got, err := hex.DecodeString(rec.MAC)
	if err != nil || !cryptox.Equal(got, cryptox.HMAC(key, []byte(rec.Data))) {
		s.log.Error(ctx, "integrity check failed", "ref", ref.String())
		return "", false, fmt.Errorf("%w: %s", common.ErrIntegrityViolation, ref)
	}
	return rec.Data, true, nil
}

// SaveJSON is SaveProtected for a JSON-encoded v.
func (s *Store) SaveJSON(ctx context.Context, ref Ref, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ref, err)
	}
	return s.SaveProtected(ctx, ref, string(b))
}

// LoadJSON is LoadProtected decoding into v.
func (s *Store) LoadJSON(ctx context.Context, ref Ref, v any) (bool, error) {
	data, found, err := s.LoadProtected(ctx, ref)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", common.ErrIntegrityViolation, ref, err)
	}
	return true, nil
}

// DeleteProtected removes the record under ref.
func (s *Store) DeleteProtected(ctx context.Context, ref Ref) error {
	if err := s.kv.Delete(ctx, ref.Namespace, ref.Key); err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}

// parseRecord distinguishes a protected record from a legacy raw value.
// A JSON object carrying only one of data/mac is treated as tampered.
func parseRecord(raw []byte) (Record, bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Record{}, false, nil
	}
	_, hasData := fields["data"]
	_, hasMAC := fields["mac"]
	if !hasData && !hasMAC {
		return Record{}, false, nil
	}
	if hasData != hasMAC {
		return Record{}, false, fmt.Errorf("record missing data or mac")
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// SaveDecoy stores the decoy blob without a MAC.
func (s *Store) SaveDecoy(ctx context.Context, blob string) error {
	if err := s.kv.Put(ctx, common.NamespaceDecoy, decoyKey, []byte(blob)); err != nil {
		return fmt.Errorf("save decoy: %w", err)
	}
	return nil
}

func (s *Store) LoadDecoy(ctx context.Context) (string, bool, error) {
	raw, err := s.kv.Get(ctx, common.NamespaceDecoy, decoyKey)
	if err != nil {
		return "", false, fmt.Errorf("load decoy: %w", err)
	}
	if raw == nil {
		return "", false, nil
	}
	return string(raw), true, nil
}

func (s *Store) DeleteDecoy(ctx context.Context) error {
	if err := s.kv.Delete(ctx, common.NamespaceDecoy, decoyKey); err != nil {
		return fmt.Errorf("delete decoy: %w", err)
	}
	return nil
}

// Forget drops the cached integrity key; the next access reloads it.
func (s *Store) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	common.WipeByteArray(s.key)
	s.key = nil
}

func (s *Store) integrityKey(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		return s.key, nil
	}

	stored, err := s.kv.Get(ctx, common.NamespaceSettings, integrityKeyName)
	if err != nil {
		return nil, fmt.Errorf("load integrity key: %w", err)
	}
	if stored == nil {
		key, err := s.createKeyLocked(ctx)
		if err != nil {
			return nil, err
		}
		s.key = key
		return key, nil
	}

	exported := string(stored)
	if s.protector != nil {
		unwrapped, err := s.protector.Unwrap(exported)
		if err != nil {
			s.log.Warn(ctx, "integrity key is not wrapped by the host key, using stored form")
		} else {
			exported = string(unwrapped)
		}
	}

	key, err := base64.StdEncoding.DecodeString(exported)
	if err != nil || len(key) != integrityKeySize {
		return nil, fmt.Errorf("%w: integrity key unreadable", common.ErrIntegrityViolation)
	}
	s.key = key
	return key, nil
}

func (s *Store) createKeyLocked(ctx context.Context) ([]byte, error) {
	key, err := cryptox.RandomBytes(integrityKeySize)
	if err != nil {
		return nil, err
	}
	exported := base64.StdEncoding.EncodeToString(key)

	stored := exported
	if s.protector != nil {
		wrapped, err := s.protector.Wrap([]byte(exported))
		if err != nil {
			s.log.Warn(ctx, "host key wrap failed, storing integrity key unwrapped", "error", err)
		} else {
			stored = wrapped
		}
	}

	if err := s.kv.Put(ctx, common.NamespaceSettings, integrityKeyName, []byte(stored)); err != nil {
		return nil, fmt.Errorf("persist integrity key: %w", err)
	}
	s.log.Info(ctx, "generated integrity key", "wrapped", stored != exported)
	return key, nil
}
