// Package state persists the engines' records in a generic key-value store.
// Logical keys are namespaced, canonically byte-encoded and keccak-hashed;
// values are RLP for flat records and explicit tagged encodings for the
// variant types.
package state

import (
	"encoding/binary"
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nftmarket/core/types"
	"nftmarket/storage"
)

// backend is the minimal raw store surface shared by the database-backed
// manager and write overlays.
type backend interface {
	get(key []byte) ([]byte, bool, error)
	put(key []byte, value []byte) error
	delete(key []byte) error
}

// Manager provides typed access to the persisted contract state.
type Manager struct {
	kv backend
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{kv: dbBackend{db: db}}
}

type dbBackend struct {
	db storage.Database
}

func (b dbBackend) get(key []byte) ([]byte, bool, error) {
	value, err := b.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (b dbBackend) put(key []byte, value []byte) error {
	return b.db.Put(key, value)
}

func (b dbBackend) delete(key []byte) error {
	return b.db.Delete(key)
}

// Key namespaces. The hashed key is keccak256(namespace || logical key).
var (
	listingPrefix             = []byte("market/listing/")
	listingByTokenPrefix      = []byte("market/listing-by-token/")
	quoteByIDPrefix           = []byte("market/quote/id/")
	quoteIDByRefPrefix        = []byte("market/quote/ref/")
	assetByIDPrefix           = []byte("market/asset/id/")
	assetIDByRefPrefix        = []byte("market/asset/ref/")
	marketCountersKeyBytes    = []byte("market/counters")
	custodyAssetPrefix        = []byte("custody/asset/")
	royaltyPaymentPrefix      = []byte("custody/payment/")
	mktWhitelistFlagKeyBytes  = []byte("custody/whitelist/marketplace/enabled")
	mktWhitelistPrefix        = []byte("custody/whitelist/marketplace/")
	payWhitelistFlagKeyBytes  = []byte("custody/whitelist/payment-token/enabled")
	payWhitelistPrefix        = []byte("custody/whitelist/payment-token/")
)

func hashedKey(prefix, logical []byte) []byte {
	buf := make([]byte, 0, len(prefix)+len(logical))
	buf = append(buf, prefix...)
	buf = append(buf, logical...)
	return ethcrypto.Keccak256(buf)
}

func u64Key(prefix []byte, id uint64) []byte {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], id)
	return hashedKey(prefix, raw[:])
}

func tokenKey(prefix []byte, id types.TokenID) []byte {
	return hashedKey(prefix, id.Bytes())
}

func addressKey(prefix []byte, addr types.Address) []byte {
	return hashedKey(prefix, addr.Bytes())
}

func (m *Manager) getBool(key []byte) (bool, error) {
	value, ok, err := m.kv.get(key)
	if err != nil || !ok {
		return false, err
	}
	return len(value) == 1 && value[0] == 1, nil
}

func (m *Manager) putBool(key []byte, v bool) error {
	if v {
		return m.kv.put(key, []byte{1})
	}
	return m.kv.put(key, []byte{0})
}
