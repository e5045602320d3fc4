package state

import (
	"github.com/ethereum/go-ethereum/rlp"

	"nftmarket/core/types"
	"nftmarket/native/custody"
)

// CustodyAssetGet loads the custodial wrapper record for a token.
func (m *Manager) CustodyAssetGet(id types.TokenID) (*custody.Asset, bool, error) {
	data, ok, err := m.kv.get(tokenKey(custodyAssetPrefix, id))
	if err != nil || !ok {
		return nil, false, err
	}
	asset := new(custody.Asset)
	if err := rlp.DecodeBytes(data, asset); err != nil {
		return nil, false, err
	}
	return asset, true, nil
}

// CustodyAssetPut persists a custodial wrapper record.
func (m *Manager) CustodyAssetPut(asset *custody.Asset) error {
	encoded, err := rlp.EncodeToBytes(asset)
	if err != nil {
		return err
	}
	return m.kv.put(tokenKey(custodyAssetPrefix, asset.TokenID), encoded)
}

// RoyaltyPaymentGet loads the royalty payment record for a token. A missing
// record decodes as Unpaid.
func (m *Manager) RoyaltyPaymentGet(id types.TokenID) (*custody.PaymentRecord, error) {
	data, ok, err := m.kv.get(tokenKey(royaltyPaymentPrefix, id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return custody.UnpaidRecord(), nil
	}
	return custody.PaymentRecordFromBytes(data)
}

// RoyaltyPaymentPut persists a royalty payment record using its tagged
// encoding.
func (m *Manager) RoyaltyPaymentPut(id types.TokenID, record *custody.PaymentRecord) error {
	sanitized, err := custody.SanitizePaymentRecord(record)
	if err != nil {
		return err
	}
	return m.kv.put(tokenKey(royaltyPaymentPrefix, id), sanitized.Bytes())
}

// MarketplaceWhitelistEnabled reports whether the marketplace whitelist gate
// is active.
func (m *Manager) MarketplaceWhitelistEnabled() (bool, error) {
	return m.getBool(hashedKey(mktWhitelistFlagKeyBytes, nil))
}

// SetMarketplaceWhitelistEnabled writes the install-time whitelist gate.
func (m *Manager) SetMarketplaceWhitelistEnabled(enabled bool) error {
	return m.putBool(hashedKey(mktWhitelistFlagKeyBytes, nil), enabled)
}

// MarketplaceWhitelisted reports whether a marketplace reference is approved.
// Absence means not whitelisted.
func (m *Manager) MarketplaceWhitelisted(ref types.Address) (bool, error) {
	return m.getBool(addressKey(mktWhitelistPrefix, ref))
}

// WhitelistMarketplace approves a marketplace reference.
func (m *Manager) WhitelistMarketplace(ref types.Address) error {
	return m.putBool(addressKey(mktWhitelistPrefix, ref), true)
}

// PaymentTokenWhitelistEnabled reports whether the payment token whitelist
// gate is active.
func (m *Manager) PaymentTokenWhitelistEnabled() (bool, error) {
	return m.getBool(hashedKey(payWhitelistFlagKeyBytes, nil))
}

// SetPaymentTokenWhitelistEnabled writes the install-time whitelist gate.
func (m *Manager) SetPaymentTokenWhitelistEnabled(enabled bool) error {
	return m.putBool(hashedKey(payWhitelistFlagKeyBytes, nil), enabled)
}

// PaymentTokenWhitelisted reports whether a payment token is approved.
func (m *Manager) PaymentTokenWhitelisted(ref types.Address) (bool, error) {
	return m.getBool(addressKey(payWhitelistPrefix, ref))
}

// WhitelistPaymentToken approves a payment token reference.
func (m *Manager) WhitelistPaymentToken(ref types.Address) error {
	return m.putBool(addressKey(payWhitelistPrefix, ref), true)
}
