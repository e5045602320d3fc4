package core

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"nftmarket/core/events"
	"nftmarket/core/types"
	nativecommon "nftmarket/native/common"
	"nftmarket/native/custody"
	"nftmarket/native/market"
	"nftmarket/native/royalty"
	"nftmarket/native/token"
	"nftmarket/state"
	"nftmarket/storage"
)

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

var (
	marketAddr  = addr(0xB0)
	custodyAddr = addr(0xC0)
	managerAddr = addr(0xAA)
	royaltyAcct = addr(0xFE)
	quoteAddr   = addr(0xF0)
	plainRef    = addr(0xD0)
	wrappedRef  = addr(0xD1)
	sellerAddr  = addr(0x01)
	bidderAddr  = addr(0x02)
)

type harness struct {
	node       *Node
	marketEng  *market.Engine
	custodyEng *custody.Engine
	quote      *token.Ledger
	plain      *token.Collection
	wrapped    *token.Collection
	enforced   *token.Collection
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	structure := royalty.NewStructure(royalty.PercentageStep(uint256.NewInt(1_000)))
	custodyEngine := custody.NewEngine(custodyAddr, managerAddr, royaltyAcct, structure)
	marketEngine := market.NewEngine(marketAddr)
	node := NewNode(st, marketEngine, custodyEngine)

	quote := token.NewLedger(quoteAddr)
	node.AddLedger(quote)
	plain := token.NewCollection(plainRef)
	node.AddCollection(plain, false)
	wrapped := token.NewCollection(wrappedRef)
	node.AddCollection(wrapped, false)
	enforced := token.NewCollection(addr(0xD2))
	node.AddCollection(enforced, true)

	require.NoError(t, quote.Mint(bidderAddr, uint256.NewInt(10_000)))
	require.NoError(t, quote.Approve(types.CallContext{Caller: bidderAddr, Self: quoteAddr}, marketAddr, uint256.NewInt(10_000)))

	return &harness{
		node:       node,
		marketEng:  marketEngine,
		custodyEng: custodyEngine,
		quote:      quote,
		plain:      plain,
		wrapped:    wrapped,
		enforced:   enforced,
	}
}

func (h *harness) balance(t *testing.T, owner types.Address) *uint256.Int {
	t.Helper()
	balance, err := h.quote.BalanceOf(owner)
	require.NoError(t, err)
	return balance
}

func TestEscrowListingLifecycle(t *testing.T) {
	h := newHarness(t)
	id := types.IndexTokenID(7)
	h.plain.Mint(id, sellerAddr, "ipfs://7")
	require.NoError(t, h.plain.Approve(types.CallContext{Caller: sellerAddr, Self: plainRef}, id, marketAddr))

	_, err := h.node.RegisterQuoteContract(sellerAddr, quoteAddr)
	require.NoError(t, err)
	_, err = h.node.RegisterAssetContract(sellerAddr, plainRef, types.Address{})
	require.NoError(t, err)

	listingID, err := h.node.Post(sellerAddr, id, plainRef, quoteAddr, uint256.NewInt(1_000))
	require.NoError(t, err)

	err = h.node.Bid(bidderAddr, listingID, uint256.NewInt(900))
	require.ErrorIs(t, err, market.ErrInvalidPaymentAmount)
	require.Equal(t, uint256.NewInt(10_000), h.balance(t, bidderAddr))

	require.NoError(t, h.node.Bid(bidderAddr, listingID, uint256.NewInt(1_000)))
	owner, err := h.plain.OwnerOf(id)
	require.NoError(t, err)
	require.Equal(t, bidderAddr, owner)
	require.Equal(t, uint256.NewInt(1_000), h.balance(t, sellerAddr))

	_, err = h.node.Listing(listingID)
	require.ErrorIs(t, err, market.ErrUnknownListing)
}

func TestCustodiedListingLifecycle(t *testing.T) {
	h := newHarness(t)
	id := types.HashTokenID("deadbeef")
	h.wrapped.Mint(id, custodyAddr, "")

	require.NoError(t, h.node.InstallCustody([]types.Address{marketAddr}, []types.Address{quoteAddr}))
	_, err := h.node.RegisterQuoteContract(sellerAddr, quoteAddr)
	require.NoError(t, err)
	_, err = h.node.RegisterAssetContract(sellerAddr, wrappedRef, custodyAddr)
	require.NoError(t, err)

	require.NoError(t, h.node.Claim(managerAddr, id, sellerAddr))
	require.NoError(t, h.node.SetDelegate(sellerAddr, id, marketAddr))

	listingID, err := h.node.Post(sellerAddr, id, wrappedRef, quoteAddr, uint256.NewInt(1_000))
	require.NoError(t, err)

	// Revoking the delegation is refused while the listing is open.
	err = h.node.SetDelegate(sellerAddr, id, types.Address{})
	require.ErrorIs(t, err, custody.ErrUndelegationNotAllowed)

	require.NoError(t, h.node.Bid(bidderAddr, listingID, uint256.NewInt(1_000)))

	owner, err := h.node.RealOwner(id)
	require.NoError(t, err)
	require.Equal(t, bidderAddr, owner)
	_, delegated, err := h.node.Delegate(id)
	require.NoError(t, err)
	require.False(t, delegated)

	// The registry entry never moved; only the custodial record did.
	holder, err := h.wrapped.OwnerOf(id)
	require.NoError(t, err)
	require.Equal(t, custodyAddr, holder)

	require.Equal(t, uint256.NewInt(900), h.balance(t, sellerAddr))
	require.Equal(t, uint256.NewInt(100), h.balance(t, royaltyAcct))
	require.Equal(t, uint256.NewInt(9_000), h.balance(t, bidderAddr))
	require.True(t, h.balance(t, marketAddr).IsZero())
}

func TestFailedSettlementRollsEverythingBack(t *testing.T) {
	h := newHarness(t)
	id := types.IndexTokenID(3)
	h.wrapped.Mint(id, custodyAddr, "")

	// The payment token whitelist deliberately excludes the quote token, so
	// custody rejects the settlement after the marketplace already pulled the
	// bidder's funds.
	require.NoError(t, h.node.InstallCustody([]types.Address{marketAddr}, []types.Address{addr(0xF9)}))
	_, err := h.node.RegisterQuoteContract(sellerAddr, quoteAddr)
	require.NoError(t, err)
	_, err = h.node.RegisterAssetContract(sellerAddr, wrappedRef, custodyAddr)
	require.NoError(t, err)
	require.NoError(t, h.node.Claim(managerAddr, id, sellerAddr))
	require.NoError(t, h.node.SetDelegate(sellerAddr, id, marketAddr))
	listingID, err := h.node.Post(sellerAddr, id, wrappedRef, quoteAddr, uint256.NewInt(1_000))
	require.NoError(t, err)

	err = h.node.Bid(bidderAddr, listingID, uint256.NewInt(1_000))
	require.ErrorIs(t, err, custody.ErrPaymentTokenNotWhitelisted)

	require.Equal(t, uint256.NewInt(10_000), h.balance(t, bidderAddr))
	require.True(t, h.balance(t, marketAddr).IsZero())
	require.True(t, h.balance(t, sellerAddr).IsZero())
	owner, err := h.node.RealOwner(id)
	require.NoError(t, err)
	require.Equal(t, sellerAddr, owner)
	_, err = h.node.Listing(listingID)
	require.NoError(t, err)
}

func TestRoyaltyEnforcedTransfer(t *testing.T) {
	h := newHarness(t)
	enforcedRef := h.enforced.Address()
	id := types.IndexTokenID(11)
	h.enforced.Mint(id, sellerAddr, "")
	require.NoError(t, h.enforced.Approve(types.CallContext{Caller: sellerAddr, Self: enforcedRef}, id, marketAddr))
	require.NoError(t, h.node.InstallCustody([]types.Address{marketAddr}, []types.Address{quoteAddr}))
	require.NoError(t, h.quote.Approve(types.CallContext{Caller: bidderAddr, Self: quoteAddr}, custodyAddr, uint256.NewInt(10_000)))

	// No payment proof yet: the filter vetoes and nothing changes.
	err := h.node.TransferAsset(marketAddr, enforcedRef, id, sellerAddr, bidderAddr)
	require.ErrorIs(t, err, token.ErrTransferVetoed)
	owner, err := h.enforced.OwnerOf(id)
	require.NoError(t, err)
	require.Equal(t, sellerAddr, owner)

	require.NoError(t, h.node.PayRoyalty(marketAddr, enforcedRef, id, bidderAddr, sellerAddr, bidderAddr, quoteAddr, uint256.NewInt(2_000)))
	require.Equal(t, uint256.NewInt(200), h.balance(t, royaltyAcct))

	// A second payment for the same pending transfer is rejected.
	err = h.node.PayRoyalty(marketAddr, enforcedRef, id, bidderAddr, sellerAddr, bidderAddr, quoteAddr, uint256.NewInt(2_000))
	require.ErrorIs(t, err, custody.ErrAlreadyPaid)

	require.NoError(t, h.node.TransferAsset(marketAddr, enforcedRef, id, sellerAddr, bidderAddr))
	owner, err = h.enforced.OwnerOf(id)
	require.NoError(t, err)
	require.Equal(t, bidderAddr, owner)

	// The proof was consumed; the next transfer needs a fresh payment.
	err = h.node.TransferAsset(bidderAddr, enforcedRef, id, bidderAddr, sellerAddr)
	require.ErrorIs(t, err, token.ErrTransferVetoed)
}

func TestCancelRestoresEscrowedAsset(t *testing.T) {
	h := newHarness(t)
	id := types.IndexTokenID(7)
	h.plain.Mint(id, sellerAddr, "")
	require.NoError(t, h.plain.Approve(types.CallContext{Caller: sellerAddr, Self: plainRef}, id, marketAddr))
	_, err := h.node.RegisterQuoteContract(sellerAddr, quoteAddr)
	require.NoError(t, err)
	_, err = h.node.RegisterAssetContract(sellerAddr, plainRef, types.Address{})
	require.NoError(t, err)
	listingID, err := h.node.Post(sellerAddr, id, plainRef, quoteAddr, uint256.NewInt(1_000))
	require.NoError(t, err)

	err = h.node.Cancel(bidderAddr, listingID)
	require.ErrorIs(t, err, market.ErrInvalidMethodAccess)

	require.NoError(t, h.node.Cancel(sellerAddr, listingID))
	owner, err := h.plain.OwnerOf(id)
	require.NoError(t, err)
	require.Equal(t, sellerAddr, owner)
}

func TestRoyaltyQuoteMatchesStructure(t *testing.T) {
	h := newHarness(t)
	quote, err := h.node.RoyaltyQuote(uint256.NewInt(12_345))
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1_234), quote)
}

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

func TestPausedModulesRejectMutations(t *testing.T) {
	h := newHarness(t)
	paused := pauseSet{"market": true, "custody": true}
	h.marketEng.SetPauses(paused)
	h.custodyEng.SetPauses(paused)

	id := types.IndexTokenID(7)
	_, err := h.node.RegisterQuoteContract(sellerAddr, quoteAddr)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
	_, err = h.node.Post(sellerAddr, id, plainRef, quoteAddr, uint256.NewInt(1_000))
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
	err = h.node.Claim(managerAddr, id, sellerAddr)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)

	// Read paths stay open while the modules are halted.
	_, err = h.node.RoyaltyQuote(uint256.NewInt(100))
	require.NoError(t, err)

	h.marketEng.SetPauses(nil)
	h.custodyEng.SetPauses(nil)
	_, err = h.node.RegisterQuoteContract(sellerAddr, quoteAddr)
	require.NoError(t, err)
	require.NoError(t, h.node.Claim(managerAddr, id, sellerAddr))
}

func TestEventsBufferedUntilCommit(t *testing.T) {
	h := newHarness(t)
	var seen []string
	h.node.SetEmitter(events.EmitterFunc(func(evt events.Event) {
		seen = append(seen, evt.EventType())
	}))

	id := types.IndexTokenID(5)
	errAbort := errors.New("abort after claim")
	err := h.node.execute(func() error {
		if err := h.node.custody.Claim(h.node.custodyCtx(managerAddr), id, sellerAddr); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	// The claim inside the aborted call emitted, but nothing may reach the
	// sink: the event dies with the rolled-back state.
	require.Empty(t, seen)
	_, err = h.node.RealOwner(id)
	require.ErrorIs(t, err, custody.ErrUnknownToken)

	require.NoError(t, h.node.Claim(managerAddr, id, sellerAddr))
	require.Equal(t, []string{custody.EventTypeClaimed}, seen)
}
