package state

import (
	"github.com/ethereum/go-ethereum/rlp"

	"nftmarket/core/types"
	"nftmarket/native/market"
)

// ListingGet loads a listing by its dense id.
func (m *Manager) ListingGet(id uint64) (*market.Listing, bool, error) {
	data, ok, err := m.kv.get(u64Key(listingPrefix, id))
	if err != nil || !ok {
		return nil, false, err
	}
	listing := new(market.Listing)
	if err := rlp.DecodeBytes(data, listing); err != nil {
		return nil, false, err
	}
	return listing, true, nil
}

// ListingPut persists a listing record.
func (m *Manager) ListingPut(l *market.Listing) error {
	sanitized, err := market.SanitizeListing(l)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(sanitized)
	if err != nil {
		return err
	}
	return m.kv.put(u64Key(listingPrefix, sanitized.ID), encoded)
}

// ListingRemove deletes a settled or cancelled listing.
func (m *Manager) ListingRemove(id uint64) error {
	return m.kv.delete(u64Key(listingPrefix, id))
}

// ListingIDByToken resolves the reverse token-to-listing index.
func (m *Manager) ListingIDByToken(id types.TokenID) (uint64, bool, error) {
	data, ok, err := m.kv.get(tokenKey(listingByTokenPrefix, id))
	if err != nil || !ok {
		return 0, false, err
	}
	var listingID uint64
	if err := rlp.DecodeBytes(data, &listingID); err != nil {
		return 0, false, err
	}
	return listingID, true, nil
}

// ListingIndexPut records the reverse token-to-listing pointer.
func (m *Manager) ListingIndexPut(id types.TokenID, listingID uint64) error {
	encoded, err := rlp.EncodeToBytes(listingID)
	if err != nil {
		return err
	}
	return m.kv.put(tokenKey(listingByTokenPrefix, id), encoded)
}

// ListingIndexRemove clears the reverse token-to-listing pointer.
func (m *Manager) ListingIndexRemove(id types.TokenID) error {
	return m.kv.delete(tokenKey(listingByTokenPrefix, id))
}

// QuoteContractGet loads registered quote-currency metadata by id.
func (m *Manager) QuoteContractGet(id uint64) (*market.QuoteContract, bool, error) {
	data, ok, err := m.kv.get(u64Key(quoteByIDPrefix, id))
	if err != nil || !ok {
		return nil, false, err
	}
	meta := new(market.QuoteContract)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, false, err
	}
	return meta, true, nil
}

// QuoteContractIDByRef resolves a quote contract reference to its dense id.
func (m *Manager) QuoteContractIDByRef(ref types.Address) (uint64, bool, error) {
	return m.contractIDByRef(quoteIDByRefPrefix, ref)
}

// QuoteContractPut stores quote-currency metadata in both directions.
func (m *Manager) QuoteContractPut(meta *market.QuoteContract) error {
	encoded, err := rlp.EncodeToBytes(meta)
	if err != nil {
		return err
	}
	if err := m.kv.put(u64Key(quoteByIDPrefix, meta.ID), encoded); err != nil {
		return err
	}
	return m.putContractID(quoteIDByRefPrefix, meta.Ref, meta.ID)
}

// AssetContractGet loads registered NFT registry metadata by id.
func (m *Manager) AssetContractGet(id uint64) (*market.AssetContract, bool, error) {
	data, ok, err := m.kv.get(u64Key(assetByIDPrefix, id))
	if err != nil || !ok {
		return nil, false, err
	}
	meta := new(market.AssetContract)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, false, err
	}
	return meta, true, nil
}

// AssetContractIDByRef resolves an NFT registry reference to its dense id.
func (m *Manager) AssetContractIDByRef(ref types.Address) (uint64, bool, error) {
	return m.contractIDByRef(assetIDByRefPrefix, ref)
}

// AssetContractPut stores NFT registry metadata in both directions.
func (m *Manager) AssetContractPut(meta *market.AssetContract) error {
	encoded, err := rlp.EncodeToBytes(meta)
	if err != nil {
		return err
	}
	if err := m.kv.put(u64Key(assetByIDPrefix, meta.ID), encoded); err != nil {
		return err
	}
	return m.putContractID(assetIDByRefPrefix, meta.Ref, meta.ID)
}

// MarketCountersGet loads the id generators, defaulting to zero.
func (m *Manager) MarketCountersGet() (*market.Counters, error) {
	data, ok, err := m.kv.get(hashedKey(marketCountersKeyBytes, nil))
	if err != nil {
		return nil, err
	}
	counters := new(market.Counters)
	if !ok {
		return counters, nil
	}
	if err := rlp.DecodeBytes(data, counters); err != nil {
		return nil, err
	}
	return counters, nil
}

// MarketCountersPut persists the id generators.
func (m *Manager) MarketCountersPut(counters *market.Counters) error {
	encoded, err := rlp.EncodeToBytes(counters)
	if err != nil {
		return err
	}
	return m.kv.put(hashedKey(marketCountersKeyBytes, nil), encoded)
}

func (m *Manager) contractIDByRef(prefix []byte, ref types.Address) (uint64, bool, error) {
	data, ok, err := m.kv.get(addressKey(prefix, ref))
	if err != nil || !ok {
		return 0, false, err
	}
	var id uint64
	if err := rlp.DecodeBytes(data, &id); err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (m *Manager) putContractID(prefix []byte, ref types.Address, id uint64) error {
	encoded, err := rlp.EncodeToBytes(id)
	if err != nil {
		return err
	}
	return m.kv.put(addressKey(prefix, ref), encoded)
}
