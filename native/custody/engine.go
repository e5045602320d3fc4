package custody

import (
	"errors"

	"github.com/holiman/uint256"

	"nftmarket/core/events"
	"nftmarket/core/types"
	nativecommon "nftmarket/native/common"
	"nftmarket/native/royalty"
	"nftmarket/native/token"
)

var (
	errNilState    = errors.New("custody engine: state not configured")
	errNilResolver = errors.New("custody engine: contract resolver not configured")
)

const custodyModuleName = "custody"

type engineState interface {
	CustodyAssetGet(id types.TokenID) (*Asset, bool, error)
	CustodyAssetPut(*Asset) error
	RoyaltyPaymentGet(id types.TokenID) (*PaymentRecord, error)
	RoyaltyPaymentPut(id types.TokenID, record *PaymentRecord) error
	MarketplaceWhitelistEnabled() (bool, error)
	MarketplaceWhitelisted(ref types.Address) (bool, error)
	SetMarketplaceWhitelistEnabled(enabled bool) error
	WhitelistMarketplace(ref types.Address) error
	PaymentTokenWhitelistEnabled() (bool, error)
	PaymentTokenWhitelisted(ref types.Address) (bool, error)
	SetPaymentTokenWhitelistEnabled(enabled bool) error
	WhitelistPaymentToken(ref types.Address) error
}

// Marketplace is the callback surface the custodial layer needs from a
// delegate when the real owner asks to revoke the delegation.
type Marketplace interface {
	RequestUndelegate(ctx types.CallContext, id types.TokenID, owner types.Address) (bool, error)
}

// ContractResolver resolves contract references to live collaborator
// instances for nested cross-contract calls.
type ContractResolver interface {
	Fungible(ref types.Address) (token.Fungible, error)
	Registry(ref types.Address) (token.Registry, error)
	Marketplace(ref types.Address) (Marketplace, error)
}

// Engine is the custodial royalty layer: it tracks the real owner of wrapped
// assets, at most one delegate per asset, and the royalty payment state the
// registry transfer filter consults. The royalty structure is fixed at
// construction and never changes afterwards.
type Engine struct {
	state          engineState
	emitter        events.Emitter
	resolver       ContractResolver
	pauses         nativecommon.PauseView
	structure      royalty.Structure
	self           types.Address
	manager        types.Address
	royaltyAccount types.Address
}

// NewEngine creates a custodial engine with a no-op emitter. The manager is
// the only key allowed to claim assets; royalties accumulate in the royalty
// account.
func NewEngine(self, manager, royaltyAccount types.Address, structure royalty.Structure) *Engine {
	return &Engine{
		emitter:        events.NoopEmitter{},
		structure:      structure.Clone(),
		self:           self,
		manager:        manager,
		royaltyAccount: royaltyAccount,
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

// Self returns the contract identity of the custodial layer.
func (e *Engine) Self() types.Address { return e.self }

// RoyaltyStructure returns a copy of the installed royalty structure.
func (e *Engine) RoyaltyStructure() royalty.Structure { return e.structure.Clone() }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(custodyEvent{evt: evt})
}

// Install writes the whitelist state. An empty marketplace list disables the
// marketplace whitelist entirely (default-allow); the same rule applies to
// payment tokens. The gate flags are set once here and never flipped later.
func (e *Engine) Install(marketplaces, paymentTokens []types.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.state.SetMarketplaceWhitelistEnabled(len(marketplaces) > 0); err != nil {
		return err
	}
	for _, ref := range marketplaces {
		if err := e.state.WhitelistMarketplace(ref); err != nil {
			return err
		}
	}
	if err := e.state.SetPaymentTokenWhitelistEnabled(len(paymentTokens) > 0); err != nil {
		return err
	}
	for _, ref := range paymentTokens {
		if err := e.state.WhitelistPaymentToken(ref); err != nil {
			return err
		}
	}
	return nil
}

// Claim binds the real owner of an unmanaged asset. Only the configured
// manager may claim; claiming an already-claimed asset fails.
func (e *Engine) Claim(ctx types.CallContext, id types.TokenID, owner types.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, custodyModuleName); err != nil {
		return err
	}
	if ctx.Caller != e.manager {
		return ErrInvalidMethodAccess
	}
	if err := id.Validate(); err != nil {
		return err
	}
	if _, ok, err := e.state.CustodyAssetGet(id); err != nil {
		return err
	} else if ok {
		return ErrAlreadyClaimed
	}
	asset := &Asset{TokenID: id, RealOwner: owner}
	if err := e.state.CustodyAssetPut(asset); err != nil {
		return err
	}
	e.emit(NewClaimedEvent(asset))
	return nil
}

// RealOwner returns the logical owner tracked by the custodial layer.
func (e *Engine) RealOwner(id types.TokenID) (types.Address, error) {
	asset, err := e.loadAsset(id)
	if err != nil {
		return types.Address{}, err
	}
	return asset.RealOwner, nil
}

// Delegate returns the currently authorized delegate, if any.
func (e *Engine) Delegate(id types.TokenID) (types.Address, bool, error) {
	asset, err := e.loadAsset(id)
	if err != nil {
		return types.Address{}, false, err
	}
	return asset.Delegate, asset.Delegated(), nil
}

// SetDelegate grants or revokes the single transfer delegation for an asset.
// Granting requires the caller to be the real owner, no active delegate and a
// whitelisted delegate. Revoking (zero delegate) additionally asks the
// current delegate for approval via its RequestUndelegate callback.
func (e *Engine) SetDelegate(ctx types.CallContext, id types.TokenID, delegate types.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, custodyModuleName); err != nil {
		return err
	}
	asset, err := e.loadAsset(id)
	if err != nil {
		return err
	}
	if ctx.Caller != asset.RealOwner {
		return ErrInvalidMethodAccess
	}
	if delegate.IsZero() {
		return e.undelegate(ctx, asset)
	}
	if asset.Delegated() {
		return ErrAlreadyDelegated
	}
	whitelisted, err := e.marketplaceAllowed(delegate)
	if err != nil {
		return err
	}
	if !whitelisted {
		return ErrMarketplaceNotWhitelisted
	}
	asset.Delegate = delegate
	if err := e.state.CustodyAssetPut(asset); err != nil {
		return err
	}
	e.emit(NewDelegatedEvent(asset))
	return nil
}

func (e *Engine) undelegate(ctx types.CallContext, asset *Asset) error {
	if !asset.Delegated() {
		return nil
	}
	if e.resolver == nil {
		return errNilResolver
	}
	delegate, err := e.resolver.Marketplace(asset.Delegate)
	if err != nil {
		return err
	}
	allowed, err := delegate.RequestUndelegate(ctx.Nest(asset.Delegate), asset.TokenID, asset.RealOwner)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrUndelegationNotAllowed
	}
	asset.Delegate = types.Address{}
	if err := e.state.CustodyAssetPut(asset); err != nil {
		return err
	}
	e.emit(NewUndelegatedEvent(asset))
	return nil
}

// CalculateRoyalty quotes the royalty for a payment amount. Pure: repeated
// calls with the same inputs always return the same value. The fixed
// structure applies uniformly, so the token and payment contract do not
// influence the quote.
func (e *Engine) CalculateRoyalty(_ types.TokenID, _ types.Address, amount *uint256.Int) (*uint256.Int, error) {
	return e.structure.CalculateTotalRoyalty(amount)
}

// Transfer settles a delegated sale: only the current delegate may call it.
// The royalty is pulled from the payment source to the royalty account, the
// real owner is reassigned and the delegation cleared. The caller's state
// overlay makes the three side effects commit or revert together.
func (e *Engine) Transfer(ctx types.CallContext, id types.TokenID, source, target, paymentSource, paymentToken types.Address, amount *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.resolver == nil {
		return errNilResolver
	}
	if err := nativecommon.Guard(e.pauses, custodyModuleName); err != nil {
		return err
	}
	asset, err := e.loadAsset(id)
	if err != nil {
		return err
	}
	if !asset.Delegated() || ctx.Caller != asset.Delegate {
		return ErrInvalidMethodAccess
	}
	if source != asset.RealOwner {
		return ErrSourceMustBeOwner
	}
	if source == target {
		return ErrSelfTransferForbidden
	}
	allowed, err := e.paymentTokenAllowed(paymentToken)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrPaymentTokenNotWhitelisted
	}
	totalRoyalty, err := e.structure.CalculateTotalRoyalty(amount)
	if err != nil {
		return err
	}
	if !totalRoyalty.IsZero() {
		fungible, err := e.resolver.Fungible(paymentToken)
		if err != nil {
			return err
		}
		if err := fungible.TransferFrom(ctx.Nest(paymentToken), paymentSource, e.royaltyAccount, totalRoyalty); err != nil {
			return err
		}
	}
	asset.RealOwner = target
	asset.Delegate = types.Address{}
	if err := e.state.CustodyAssetPut(asset); err != nil {
		return err
	}
	e.emit(NewTransferredEvent(asset, totalRoyalty))
	return nil
}

// PayRoyalty records a royalty payment proof for one subsequent transfer in
// the filter-enforced variant. The caller must be the registry-approved
// operator for the token and a whitelisted marketplace; the source must be
// the registry's live owner. A still-unconsumed proof from the same source
// cannot be paid again.
func (e *Engine) PayRoyalty(ctx types.CallContext, assetContract types.Address, id types.TokenID, payer, source, target types.Address, paymentToken types.Address, amount *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.resolver == nil {
		return errNilResolver
	}
	if err := nativecommon.Guard(e.pauses, custodyModuleName); err != nil {
		return err
	}
	totalRoyalty, err := e.structure.CalculateTotalRoyalty(amount)
	if err != nil {
		return err
	}
	registry, err := e.resolver.Registry(assetContract)
	if err != nil {
		return err
	}
	approved, ok, err := registry.GetApproved(id)
	if err != nil {
		return err
	}
	if !ok || approved != ctx.Caller {
		return ErrCallerMustBeApproved
	}
	whitelisted, err := e.marketplaceAllowed(ctx.Caller)
	if err != nil {
		return err
	}
	if !whitelisted {
		return ErrMarketplaceNotWhitelisted
	}
	currentOwner, err := registry.OwnerOf(id)
	if err != nil {
		return err
	}
	if currentOwner != source {
		return ErrSourceMustBeOwner
	}
	if source == target {
		return ErrSelfTransferForbidden
	}
	record, err := e.state.RoyaltyPaymentGet(id)
	if err != nil {
		return err
	}
	if record != nil && record.Paid && record.Source == source {
		return ErrAlreadyPaid
	}
	if !totalRoyalty.IsZero() {
		fungible, err := e.resolver.Fungible(paymentToken)
		if err != nil {
			return err
		}
		if err := fungible.TransferFrom(ctx.Nest(paymentToken), payer, e.royaltyAccount, totalRoyalty); err != nil {
			return err
		}
	}
	paid := PaidRecord(payer, source, totalRoyalty)
	if err := e.state.RoyaltyPaymentPut(id, paid); err != nil {
		return err
	}
	e.emit(NewRoyaltyPaidEvent(id, paid))
	return nil
}

// CanTransfer is the registry transfer filter: it proceeds only when the
// recorded payment proof matches both the attempted source and the registry's
// live owner, consuming the proof as a side effect. Writing Unpaid before the
// actual transfer is safe because a denied or failed transfer rolls the whole
// call back, including this write.
func (e *Engine) CanTransfer(ctx types.CallContext, id types.TokenID, source, _ types.Address) (uint8, error) {
	if e == nil || e.state == nil {
		return token.Deny, errNilState
	}
	if e.resolver == nil {
		return token.Deny, errNilResolver
	}
	record, err := e.state.RoyaltyPaymentGet(id)
	if err != nil {
		return token.Deny, err
	}
	if record == nil || !record.Paid {
		return token.Deny, nil
	}
	registry, err := e.resolver.Registry(ctx.Caller)
	if err != nil {
		return token.Deny, err
	}
	currentOwner, err := registry.OwnerOf(id)
	if err != nil {
		return token.Deny, err
	}
	if record.Source != source || source != currentOwner {
		return token.Deny, nil
	}
	if err := e.state.RoyaltyPaymentPut(id, UnpaidRecord()); err != nil {
		return token.Deny, err
	}
	return token.Proceed, nil
}

func (e *Engine) loadAsset(id types.TokenID) (*Asset, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	asset, ok, err := e.state.CustodyAssetGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownToken
	}
	return asset, nil
}

func (e *Engine) marketplaceAllowed(ref types.Address) (bool, error) {
	enabled, err := e.state.MarketplaceWhitelistEnabled()
	if err != nil {
		return false, err
	}
	if !enabled {
		return true, nil
	}
	return e.state.MarketplaceWhitelisted(ref)
}

func (e *Engine) paymentTokenAllowed(ref types.Address) (bool, error) {
	enabled, err := e.state.PaymentTokenWhitelistEnabled()
	if err != nil {
		return false, err
	}
	if !enabled {
		return true, nil
	}
	return e.state.PaymentTokenWhitelisted(ref)
}
