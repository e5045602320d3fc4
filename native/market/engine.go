package market

import (
	"errors"

	"github.com/holiman/uint256"

	"nftmarket/core/events"
	"nftmarket/core/types"
	nativecommon "nftmarket/native/common"
	"nftmarket/native/token"
)

var (
	errNilState    = errors.New("market engine: state not configured")
	errNilResolver = errors.New("market engine: contract resolver not configured")
)

const marketModuleName = "market"

type engineState interface {
	ListingGet(id uint64) (*Listing, bool, error)
	ListingPut(*Listing) error
	ListingRemove(id uint64) error
	ListingIDByToken(id types.TokenID) (uint64, bool, error)
	ListingIndexPut(id types.TokenID, listingID uint64) error
	ListingIndexRemove(id types.TokenID) error
	QuoteContractGet(id uint64) (*QuoteContract, bool, error)
	QuoteContractIDByRef(ref types.Address) (uint64, bool, error)
	QuoteContractPut(*QuoteContract) error
	AssetContractGet(id uint64) (*AssetContract, bool, error)
	AssetContractIDByRef(ref types.Address) (uint64, bool, error)
	AssetContractPut(*AssetContract) error
	MarketCountersGet() (*Counters, error)
	MarketCountersPut(*Counters) error
}

// Custodial is the custodial-layer surface the marketplace settles against.
type Custodial interface {
	Delegate(id types.TokenID) (types.Address, bool, error)
	RealOwner(id types.TokenID) (types.Address, error)
	CalculateRoyalty(id types.TokenID, paymentToken types.Address, amount *uint256.Int) (*uint256.Int, error)
	Transfer(ctx types.CallContext, id types.TokenID, source, target, paymentSource, paymentToken types.Address, amount *uint256.Int) error
}

// ContractResolver resolves registered contract references to live
// collaborator instances for nested cross-contract calls.
type ContractResolver interface {
	Fungible(ref types.Address) (token.Fungible, error)
	Registry(ref types.Address) (token.Registry, error)
	Custodial(ref types.Address) (Custodial, error)
}

// Engine is the marketplace orderbook: it records listings, executes bid
// settlement including royalty collection, and onboards quote and asset
// contract references.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	resolver ContractResolver
	pauses   nativecommon.PauseView
	self     types.Address
}

// NewEngine creates a marketplace engine deployed at the given contract
// address, with a no-op emitter.
func NewEngine(self types.Address) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		self:    self,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetResolver configures cross-contract call resolution.
func (e *Engine) SetResolver(resolver ContractResolver) { e.resolver = resolver }

// SetPauses configures the administrative pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Self returns the contract identity of the marketplace.
func (e *Engine) Self() types.Address { return e.self }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: evt})
}

// RegisterQuoteContract assigns a dense id to a quote-currency contract
// reference and stores the mapping in both directions. Re-registering the
// same reference assigns a fresh id pointing at the same contract.
func (e *Engine) RegisterQuoteContract(ctx types.CallContext, ref types.Address) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return 0, err
	}
	id, err := e.nextContractID()
	if err != nil {
		return 0, err
	}
	if err := e.state.QuoteContractPut(&QuoteContract{ID: id, Ref: ref}); err != nil {
		return 0, err
	}
	e.emit(NewQuoteRegisteredEvent(id, ref))
	return id, nil
}

// RegisterAssetContract assigns a dense id to an NFT registry reference.
// A non-zero custodial address marks the registry as wrapped: its listings
// settle through the custodial layer instead of escrow transfer.
func (e *Engine) RegisterAssetContract(ctx types.CallContext, ref, custodial types.Address) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return 0, err
	}
	id, err := e.nextContractID()
	if err != nil {
		return 0, err
	}
	if err := e.state.AssetContractPut(&AssetContract{ID: id, Ref: ref, Custodial: custodial}); err != nil {
		return 0, err
	}
	e.emit(NewAssetRegisteredEvent(id, ref, custodial))
	return id, nil
}

// Post records a new fixed-price listing. For escrowed registries the asset
// is pulled into marketplace custody; for custodied registries the
// marketplace must already be the token's delegate and the asset stays put.
func (e *Engine) Post(ctx types.CallContext, id types.TokenID, assetRef, quoteRef types.Address, price *uint256.Int) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return 0, err
	}
	if err := id.Validate(); err != nil {
		return 0, err
	}
	quoteID, ok, err := e.state.QuoteContractIDByRef(quoteRef)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrUnsupportedFungibleToken
	}
	assetID, ok, err := e.state.AssetContractIDByRef(assetRef)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrUnsupportedAssetContract
	}
	meta, ok, err := e.state.AssetContractGet(assetID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrUnsupportedAssetContract
	}
	if _, listed, err := e.state.ListingIDByToken(id); err != nil {
		return 0, err
	} else if listed {
		return 0, ErrAlreadyListed
	}
	env, strategy, err := e.custody(meta)
	if err != nil {
		return 0, err
	}
	seller := ctx.Caller
	if err := strategy.VerifyAuthorization(ctx, env, id, seller); err != nil {
		return 0, err
	}
	if err := strategy.TakeCustody(ctx, env, id, seller); err != nil {
		return 0, err
	}
	counters, err := e.state.MarketCountersGet()
	if err != nil {
		return 0, err
	}
	listingID := counters.NextListingID
	counters.NextListingID++
	if err := e.state.MarketCountersPut(counters); err != nil {
		return 0, err
	}
	listing := &Listing{
		ID:              listingID,
		Owner:           seller,
		AssetContractID: assetID,
		QuoteContractID: quoteID,
		TokenID:         id,
		Price:           price,
	}
	sanitized, err := SanitizeListing(listing)
	if err != nil {
		return 0, err
	}
	if err := e.state.ListingIndexPut(id, listingID); err != nil {
		return 0, err
	}
	if err := e.state.ListingPut(sanitized); err != nil {
		return 0, err
	}
	e.emit(NewPostedEvent(sanitized))
	return listingID, nil
}

// Bid settles a listing. A payment below the asking price fails without
// moving anything. For custodied assets the settlement is royalty-enforced:
// the custodial layer is asked for a quote first, granted an allowance of
// exactly that amount, and the marketplace's observed balance delta must
// match the quote before the seller is paid the remainder. The listing is
// deleted only after every transfer has succeeded.
func (e *Engine) Bid(ctx types.CallContext, listingID uint64, amount *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.resolver == nil {
		return errNilResolver
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	listing, ok, err := e.state.ListingGet(listingID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownListing
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	if amount.Lt(listing.Price) {
		return ErrInvalidPaymentAmount
	}
	quote, ok, err := e.state.QuoteContractGet(listing.QuoteContractID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnsupportedFungibleToken
	}
	asset, ok, err := e.state.AssetContractGet(listing.AssetContractID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnsupportedAssetContract
	}
	fungible, err := e.resolver.Fungible(quote.Ref)
	if err != nil {
		return err
	}
	bidder := ctx.Caller
	if asset.Custodied() {
		if err := e.settleCustodied(ctx, listing, asset, quote, fungible, bidder, amount); err != nil {
			return err
		}
	} else {
		registry, err := e.resolver.Registry(asset.Ref)
		if err != nil {
			return err
		}
		if err := fungible.TransferFrom(ctx.Nest(quote.Ref), bidder, listing.Owner, amount); err != nil {
			return err
		}
		if err := registry.Transfer(ctx.Nest(asset.Ref), listing.TokenID, e.self, bidder); err != nil {
			return err
		}
	}
	if err := e.state.ListingIndexRemove(listing.TokenID); err != nil {
		return err
	}
	if err := e.state.ListingRemove(listingID); err != nil {
		return err
	}
	e.emit(NewSettledEvent(listing, bidder, amount))
	return nil
}

// settleCustodied runs the royalty-enforced settlement path. The balance
// delta check is the defense against a custodial contract charging a
// different amount than it quoted.
func (e *Engine) settleCustodied(ctx types.CallContext, listing *Listing, asset *AssetContract, quote *QuoteContract, fungible token.Fungible, bidder types.Address, amount *uint256.Int) error {
	custodial, err := e.resolver.Custodial(asset.Custodial)
	if err != nil {
		return err
	}
	expected, err := custodial.CalculateRoyalty(listing.TokenID, quote.Ref, amount)
	if err != nil {
		return err
	}
	if err := fungible.TransferFrom(ctx.Nest(quote.Ref), bidder, e.self, amount); err != nil {
		return err
	}
	if err := fungible.Approve(ctx.Nest(quote.Ref), asset.Custodial, expected); err != nil {
		return err
	}
	before, err := fungible.BalanceOf(e.self)
	if err != nil {
		return err
	}
	if err := custodial.Transfer(ctx.Nest(asset.Custodial), listing.TokenID, listing.Owner, bidder, e.self, quote.Ref, amount); err != nil {
		return err
	}
	after, err := fungible.BalanceOf(e.self)
	if err != nil {
		return err
	}
	charged := new(uint256.Int)
	if _, underflow := charged.SubOverflow(before, after); underflow {
		return ErrArithmeticOverflow
	}
	if !charged.Eq(expected) {
		return ErrRoyaltyMismatch
	}
	remaining := new(uint256.Int)
	if _, underflow := remaining.SubOverflow(amount, charged); underflow {
		return ErrArithmeticOverflow
	}
	return fungible.Transfer(ctx.Nest(quote.Ref), listing.Owner, remaining)
}

// Cancel withdraws an open listing. Only the recorded seller may cancel; for
// escrowed assets the marketplace hands the asset back, for delegated assets
// nothing moves because the seller never lost custody.
func (e *Engine) Cancel(ctx types.CallContext, listingID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	listing, ok, err := e.state.ListingGet(listingID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownListing
	}
	if ctx.Caller != listing.Owner {
		return ErrInvalidMethodAccess
	}
	asset, ok, err := e.state.AssetContractGet(listing.AssetContractID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnsupportedAssetContract
	}
	env, strategy, err := e.custody(asset)
	if err != nil {
		return err
	}
	if err := strategy.ReleaseCustody(ctx, env, listing.TokenID, listing.Owner); err != nil {
		return err
	}
	if err := e.state.ListingIndexRemove(listing.TokenID); err != nil {
		return err
	}
	if err := e.state.ListingRemove(listingID); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(listing))
	return nil
}

// Listing returns the stored record for an open listing.
func (e *Engine) Listing(listingID uint64) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listing, ok, err := e.state.ListingGet(listingID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownListing
	}
	return listing.Clone(), nil
}

// RequestUndelegate is the callback the custodial layer invokes before it
// lets a real owner revoke this marketplace's delegation: revocation is
// approved only while the token has no open listing.
func (e *Engine) RequestUndelegate(ctx types.CallContext, id types.TokenID, owner types.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	_, listed, err := e.state.ListingIDByToken(id)
	if err != nil {
		return false, err
	}
	return !listed, nil
}

func (e *Engine) custody(meta *AssetContract) (custodyEnv, custodyStrategy, error) {
	if e.resolver == nil {
		return custodyEnv{}, nil, errNilResolver
	}
	registry, err := e.resolver.Registry(meta.Ref)
	if err != nil {
		return custodyEnv{}, nil, err
	}
	env := custodyEnv{registry: registry, assetRef: meta.Ref}
	if !meta.Custodied() {
		return env, escrowCustody{self: e.self}, nil
	}
	custodial, err := e.resolver.Custodial(meta.Custodial)
	if err != nil {
		return custodyEnv{}, nil, err
	}
	env.custodial = custodial
	return env, delegateCustody{self: e.self}, nil
}

func (e *Engine) nextContractID() (uint64, error) {
	counters, err := e.state.MarketCountersGet()
	if err != nil {
		return 0, err
	}
	id := counters.NextContractID
	counters.NextContractID++
	if err := e.state.MarketCountersPut(counters); err != nil {
		return 0, err
	}
	return id, nil
}
