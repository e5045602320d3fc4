package market

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"nftmarket/core/types"
	"nftmarket/native/token"
)

type mockState struct {
	listings map[uint64]*Listing
	byToken  map[types.TokenID]uint64
	quotes   map[uint64]*QuoteContract
	quoteIDs map[types.Address]uint64
	assets   map[uint64]*AssetContract
	assetIDs map[types.Address]uint64
	counters Counters
}

func newMockState() *mockState {
	return &mockState{
		listings: make(map[uint64]*Listing),
		byToken:  make(map[types.TokenID]uint64),
		quotes:   make(map[uint64]*QuoteContract),
		quoteIDs: make(map[types.Address]uint64),
		assets:   make(map[uint64]*AssetContract),
		assetIDs: make(map[types.Address]uint64),
	}
}

func (m *mockState) ListingGet(id uint64) (*Listing, bool, error) {
	listing, ok := m.listings[id]
	if !ok {
		return nil, false, nil
	}
	return listing.Clone(), true, nil
}

func (m *mockState) ListingPut(l *Listing) error {
	m.listings[l.ID] = l.Clone()
	return nil
}

func (m *mockState) ListingRemove(id uint64) error {
	delete(m.listings, id)
	return nil
}

func (m *mockState) ListingIDByToken(id types.TokenID) (uint64, bool, error) {
	listingID, ok := m.byToken[id]
	return listingID, ok, nil
}

func (m *mockState) ListingIndexPut(id types.TokenID, listingID uint64) error {
	m.byToken[id] = listingID
	return nil
}

func (m *mockState) ListingIndexRemove(id types.TokenID) error {
	delete(m.byToken, id)
	return nil
}

func (m *mockState) QuoteContractGet(id uint64) (*QuoteContract, bool, error) {
	meta, ok := m.quotes[id]
	return meta, ok, nil
}

func (m *mockState) QuoteContractIDByRef(ref types.Address) (uint64, bool, error) {
	id, ok := m.quoteIDs[ref]
	return id, ok, nil
}

func (m *mockState) QuoteContractPut(meta *QuoteContract) error {
	m.quotes[meta.ID] = meta
	m.quoteIDs[meta.Ref] = meta.ID
	return nil
}

func (m *mockState) AssetContractGet(id uint64) (*AssetContract, bool, error) {
	meta, ok := m.assets[id]
	return meta, ok, nil
}

func (m *mockState) AssetContractIDByRef(ref types.Address) (uint64, bool, error) {
	id, ok := m.assetIDs[ref]
	return id, ok, nil
}

func (m *mockState) AssetContractPut(meta *AssetContract) error {
	m.assets[meta.ID] = meta
	m.assetIDs[meta.Ref] = meta.ID
	return nil
}

func (m *mockState) MarketCountersGet() (*Counters, error) {
	counters := m.counters
	return &counters, nil
}

func (m *mockState) MarketCountersPut(counters *Counters) error {
	m.counters = *counters
	return nil
}

type stubCustodial struct {
	ledger      *token.Ledger
	self        types.Address
	royaltyAcct types.Address
	delegates   map[types.TokenID]types.Address
	owners      map[types.TokenID]types.Address
	rate        uint64
	charge      *uint256.Int
}

func newStubCustodial(self types.Address, ledger *token.Ledger) *stubCustodial {
	return &stubCustodial{
		ledger:      ledger,
		self:        self,
		royaltyAcct: addr(0xFE),
		delegates:   make(map[types.TokenID]types.Address),
		owners:      make(map[types.TokenID]types.Address),
		rate:        1_000,
	}
}

func (s *stubCustodial) Delegate(id types.TokenID) (types.Address, bool, error) {
	delegate, ok := s.delegates[id]
	return delegate, ok, nil
}

func (s *stubCustodial) RealOwner(id types.TokenID) (types.Address, error) {
	owner, ok := s.owners[id]
	if !ok {
		return types.Address{}, ErrUnknownListing
	}
	return owner, nil
}

func (s *stubCustodial) CalculateRoyalty(id types.TokenID, paymentToken types.Address, amount *uint256.Int) (*uint256.Int, error) {
	quoted := new(uint256.Int).Mul(amount, uint256.NewInt(s.rate))
	return quoted.Div(quoted, uint256.NewInt(10_000)), nil
}

func (s *stubCustodial) Transfer(ctx types.CallContext, id types.TokenID, source, target, paymentSource, paymentToken types.Address, amount *uint256.Int) error {
	charge := s.charge
	if charge == nil {
		quoted, err := s.CalculateRoyalty(id, paymentToken, amount)
		if err != nil {
			return err
		}
		charge = quoted
	}
	if err := s.ledger.TransferFrom(ctx.Nest(paymentToken), paymentSource, s.royaltyAcct, charge); err != nil {
		return err
	}
	s.owners[id] = target
	delete(s.delegates, id)
	return nil
}

type mockResolver struct {
	fungibles  map[types.Address]token.Fungible
	registries map[types.Address]token.Registry
	custodials map[types.Address]Custodial
}

func newMockResolver() *mockResolver {
	return &mockResolver{
		fungibles:  make(map[types.Address]token.Fungible),
		registries: make(map[types.Address]token.Registry),
		custodials: make(map[types.Address]Custodial),
	}
}

func (r *mockResolver) Fungible(ref types.Address) (token.Fungible, error) {
	if f, ok := r.fungibles[ref]; ok {
		return f, nil
	}
	return nil, ErrUnsupportedFungibleToken
}

func (r *mockResolver) Registry(ref types.Address) (token.Registry, error) {
	if c, ok := r.registries[ref]; ok {
		return c, nil
	}
	return nil, ErrUnsupportedAssetContract
}

func (r *mockResolver) Custodial(ref types.Address) (Custodial, error) {
	if c, ok := r.custodials[ref]; ok {
		return c, nil
	}
	return nil, ErrUnsupportedAssetContract
}

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

var (
	marketAddr   = addr(0xB0)
	custodialRef = addr(0xC0)
	sellerAddr   = addr(0x01)
	bidderAddr   = addr(0x02)
)

func ctxFor(caller types.Address) types.CallContext {
	return types.CallContext{Caller: caller, Self: marketAddr}
}

// escrowFixture wires a marketplace over a plain registry with a minted token
// and a funded bidder, listing-ready.
type escrowFixture struct {
	engine   *Engine
	state    *mockState
	quote    *token.Ledger
	registry *token.Collection
	tokenID  types.TokenID
}

func newEscrowFixture(t *testing.T) *escrowFixture {
	t.Helper()
	engine := NewEngine(marketAddr)
	state := newMockState()
	resolver := newMockResolver()
	engine.SetState(state)
	engine.SetResolver(resolver)

	quote := token.NewLedger(addr(0xF0))
	resolver.fungibles[quote.Address()] = quote
	registry := token.NewCollection(addr(0xD0))
	resolver.registries[registry.Address()] = registry

	_, err := engine.RegisterQuoteContract(ctxFor(sellerAddr), quote.Address())
	require.NoError(t, err)
	_, err = engine.RegisterAssetContract(ctxFor(sellerAddr), registry.Address(), types.Address{})
	require.NoError(t, err)

	id := types.IndexTokenID(7)
	registry.Mint(id, sellerAddr, "")
	require.NoError(t, registry.Approve(types.CallContext{Caller: sellerAddr, Self: registry.Address()}, id, marketAddr))
	require.NoError(t, quote.Mint(bidderAddr, uint256.NewInt(10_000)))
	require.NoError(t, quote.Approve(types.CallContext{Caller: bidderAddr, Self: quote.Address()}, marketAddr, uint256.NewInt(10_000)))

	return &escrowFixture{engine: engine, state: state, quote: quote, registry: registry, tokenID: id}
}

func (f *escrowFixture) post(t *testing.T, price uint64) uint64 {
	t.Helper()
	listingID, err := f.engine.Post(ctxFor(sellerAddr), f.tokenID, f.registry.Address(), f.quote.Address(), uint256.NewInt(price))
	require.NoError(t, err)
	return listingID
}

func TestRegisterContractsAssignDenseIDs(t *testing.T) {
	engine := NewEngine(marketAddr)
	engine.SetState(newMockState())

	first, err := engine.RegisterQuoteContract(ctxFor(sellerAddr), addr(0xF0))
	require.NoError(t, err)
	require.Equal(t, uint64(0), first)

	second, err := engine.RegisterAssetContract(ctxFor(sellerAddr), addr(0xD0), types.Address{})
	require.NoError(t, err)
	require.Equal(t, uint64(1), second)

	// Re-registering the same reference burns a fresh id.
	third, err := engine.RegisterQuoteContract(ctxFor(sellerAddr), addr(0xF0))
	require.NoError(t, err)
	require.Equal(t, uint64(2), third)
}

func TestPostEscrowsAsset(t *testing.T) {
	f := newEscrowFixture(t)

	_, err := f.engine.Post(ctxFor(sellerAddr), f.tokenID, f.registry.Address(), addr(0x99), uint256.NewInt(1_000))
	require.ErrorIs(t, err, ErrUnsupportedFungibleToken)

	_, err = f.engine.Post(ctxFor(sellerAddr), f.tokenID, addr(0x99), f.quote.Address(), uint256.NewInt(1_000))
	require.ErrorIs(t, err, ErrUnsupportedAssetContract)

	_, err = f.engine.Post(ctxFor(bidderAddr), f.tokenID, f.registry.Address(), f.quote.Address(), uint256.NewInt(1_000))
	require.ErrorIs(t, err, ErrInvalidMethodAccess)

	listingID := f.post(t, 1_000)
	require.Equal(t, uint64(0), listingID)

	holder, err := f.registry.OwnerOf(f.tokenID)
	require.NoError(t, err)
	require.Equal(t, marketAddr, holder)

	listing, err := f.engine.Listing(listingID)
	require.NoError(t, err)
	require.Equal(t, sellerAddr, listing.Owner)
	require.Equal(t, uint256.NewInt(1_000), listing.Price)

	_, err = f.engine.Post(ctxFor(sellerAddr), f.tokenID, f.registry.Address(), f.quote.Address(), uint256.NewInt(2_000))
	require.ErrorIs(t, err, ErrAlreadyListed)
}

func TestBidBelowPriceFailsWithoutSideEffects(t *testing.T) {
	f := newEscrowFixture(t)
	listingID := f.post(t, 1_000)

	err := f.engine.Bid(ctxFor(bidderAddr), listingID, uint256.NewInt(900))
	require.ErrorIs(t, err, ErrInvalidPaymentAmount)

	balance, err := f.quote.BalanceOf(bidderAddr)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(10_000), balance)
	_, err = f.engine.Listing(listingID)
	require.NoError(t, err)

	require.NoError(t, f.engine.Bid(ctxFor(bidderAddr), listingID, uint256.NewInt(1_000)))
}

func TestBidSettlesEscrowListing(t *testing.T) {
	f := newEscrowFixture(t)
	listingID := f.post(t, 1_000)

	err := f.engine.Bid(ctxFor(bidderAddr), listingID+1, uint256.NewInt(1_000))
	require.ErrorIs(t, err, ErrUnknownListing)

	require.NoError(t, f.engine.Bid(ctxFor(bidderAddr), listingID, uint256.NewInt(1_000)))

	holder, err := f.registry.OwnerOf(f.tokenID)
	require.NoError(t, err)
	require.Equal(t, bidderAddr, holder)

	proceeds, err := f.quote.BalanceOf(sellerAddr)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1_000), proceeds)

	_, err = f.engine.Listing(listingID)
	require.ErrorIs(t, err, ErrUnknownListing)
	_, listed, err := f.state.ListingIDByToken(f.tokenID)
	require.NoError(t, err)
	require.False(t, listed)

	err = f.engine.Bid(ctxFor(bidderAddr), listingID, uint256.NewInt(1_000))
	require.ErrorIs(t, err, ErrUnknownListing)
}

func TestCancelReturnsEscrowedAsset(t *testing.T) {
	f := newEscrowFixture(t)
	listingID := f.post(t, 1_000)

	err := f.engine.Cancel(ctxFor(bidderAddr), listingID)
	require.ErrorIs(t, err, ErrInvalidMethodAccess)

	require.NoError(t, f.engine.Cancel(ctxFor(sellerAddr), listingID))
	holder, err := f.registry.OwnerOf(f.tokenID)
	require.NoError(t, err)
	require.Equal(t, sellerAddr, holder)
	_, err = f.engine.Listing(listingID)
	require.ErrorIs(t, err, ErrUnknownListing)
}

// custodiedFixture wires a marketplace over a custodially wrapped registry
// where the marketplace already holds the transfer delegation.
type custodiedFixture struct {
	engine    *Engine
	state     *mockState
	quote     *token.Ledger
	registry  *token.Collection
	custodial *stubCustodial
	tokenID   types.TokenID
}

func newCustodiedFixture(t *testing.T) *custodiedFixture {
	t.Helper()
	engine := NewEngine(marketAddr)
	state := newMockState()
	resolver := newMockResolver()
	engine.SetState(state)
	engine.SetResolver(resolver)

	quote := token.NewLedger(addr(0xF0))
	resolver.fungibles[quote.Address()] = quote
	registry := token.NewCollection(addr(0xD0))
	resolver.registries[registry.Address()] = registry
	custodial := newStubCustodial(custodialRef, quote)
	resolver.custodials[custodialRef] = custodial

	_, err := engine.RegisterQuoteContract(ctxFor(sellerAddr), quote.Address())
	require.NoError(t, err)
	_, err = engine.RegisterAssetContract(ctxFor(sellerAddr), registry.Address(), custodialRef)
	require.NoError(t, err)

	id := types.IndexTokenID(7)
	registry.Mint(id, custodialRef, "")
	custodial.owners[id] = sellerAddr
	custodial.delegates[id] = marketAddr
	require.NoError(t, quote.Mint(bidderAddr, uint256.NewInt(10_000)))
	require.NoError(t, quote.Approve(types.CallContext{Caller: bidderAddr, Self: quote.Address()}, marketAddr, uint256.NewInt(10_000)))

	return &custodiedFixture{engine: engine, state: state, quote: quote, registry: registry, custodial: custodial, tokenID: id}
}

func TestPostDelegatedRequiresDelegation(t *testing.T) {
	f := newCustodiedFixture(t)

	delete(f.custodial.delegates, f.tokenID)
	_, err := f.engine.Post(ctxFor(sellerAddr), f.tokenID, f.registry.Address(), f.quote.Address(), uint256.NewInt(1_000))
	require.ErrorIs(t, err, ErrMustBeDelegated)

	f.custodial.delegates[f.tokenID] = addr(0x99)
	_, err = f.engine.Post(ctxFor(sellerAddr), f.tokenID, f.registry.Address(), f.quote.Address(), uint256.NewInt(1_000))
	require.ErrorIs(t, err, ErrMustBeDelegated)

	f.custodial.delegates[f.tokenID] = marketAddr
	_, err = f.engine.Post(ctxFor(bidderAddr), f.tokenID, f.registry.Address(), f.quote.Address(), uint256.NewInt(1_000))
	require.ErrorIs(t, err, ErrInvalidMethodAccess)

	_, err = f.engine.Post(ctxFor(sellerAddr), f.tokenID, f.registry.Address(), f.quote.Address(), uint256.NewInt(1_000))
	require.NoError(t, err)

	// The asset never leaves the custodial wrapper.
	holder, err := f.registry.OwnerOf(f.tokenID)
	require.NoError(t, err)
	require.Equal(t, custodialRef, holder)
}

func TestBidSettlesCustodiedListing(t *testing.T) {
	f := newCustodiedFixture(t)
	listingID, err := f.engine.Post(ctxFor(sellerAddr), f.tokenID, f.registry.Address(), f.quote.Address(), uint256.NewInt(1_000))
	require.NoError(t, err)

	require.NoError(t, f.engine.Bid(ctxFor(bidderAddr), listingID, uint256.NewInt(1_000)))

	require.Equal(t, bidderAddr, f.custodial.owners[f.tokenID])

	proceeds, err := f.quote.BalanceOf(sellerAddr)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(900), proceeds)
	collected, err := f.quote.BalanceOf(f.custodial.royaltyAcct)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(100), collected)
	retained, err := f.quote.BalanceOf(marketAddr)
	require.NoError(t, err)
	require.True(t, retained.IsZero())

	_, err = f.engine.Listing(listingID)
	require.ErrorIs(t, err, ErrUnknownListing)
}

func TestBidOverAskSettlesOnBidAmount(t *testing.T) {
	f := newCustodiedFixture(t)
	listingID, err := f.engine.Post(ctxFor(sellerAddr), f.tokenID, f.registry.Address(), f.quote.Address(), uint256.NewInt(1_000))
	require.NoError(t, err)

	require.NoError(t, f.engine.Bid(ctxFor(bidderAddr), listingID, uint256.NewInt(2_000)))

	proceeds, err := f.quote.BalanceOf(sellerAddr)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1_800), proceeds)
	collected, err := f.quote.BalanceOf(f.custodial.royaltyAcct)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(200), collected)
}

func TestBidDetectsRoyaltyMismatch(t *testing.T) {
	f := newCustodiedFixture(t)
	listingID, err := f.engine.Post(ctxFor(sellerAddr), f.tokenID, f.registry.Address(), f.quote.Address(), uint256.NewInt(1_000))
	require.NoError(t, err)

	// The custodial charges half of what it quoted.
	f.custodial.charge = uint256.NewInt(50)
	err = f.engine.Bid(ctxFor(bidderAddr), listingID, uint256.NewInt(1_000))
	require.ErrorIs(t, err, ErrRoyaltyMismatch)
}

func TestCancelDelegatedLeavesAssetInPlace(t *testing.T) {
	f := newCustodiedFixture(t)
	listingID, err := f.engine.Post(ctxFor(sellerAddr), f.tokenID, f.registry.Address(), f.quote.Address(), uint256.NewInt(1_000))
	require.NoError(t, err)

	require.NoError(t, f.engine.Cancel(ctxFor(sellerAddr), listingID))
	holder, err := f.registry.OwnerOf(f.tokenID)
	require.NoError(t, err)
	require.Equal(t, custodialRef, holder)
	require.Equal(t, sellerAddr, f.custodial.owners[f.tokenID])
}

func TestRequestUndelegateDeniedWhileListed(t *testing.T) {
	f := newCustodiedFixture(t)

	allowed, err := f.engine.RequestUndelegate(types.CallContext{Caller: custodialRef, Self: marketAddr}, f.tokenID, sellerAddr)
	require.NoError(t, err)
	require.True(t, allowed)

	listingID, err := f.engine.Post(ctxFor(sellerAddr), f.tokenID, f.registry.Address(), f.quote.Address(), uint256.NewInt(1_000))
	require.NoError(t, err)

	allowed, err = f.engine.RequestUndelegate(types.CallContext{Caller: custodialRef, Self: marketAddr}, f.tokenID, sellerAddr)
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, f.engine.Cancel(ctxFor(sellerAddr), listingID))
	allowed, err = f.engine.RequestUndelegate(types.CallContext{Caller: custodialRef, Self: marketAddr}, f.tokenID, sellerAddr)
	require.NoError(t, err)
	require.True(t, allowed)
}
