package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"nftmarket/core/events"
	"nftmarket/core/types"
	"nftmarket/native/custody"
	"nftmarket/native/market"
	"nftmarket/native/token"
	"nftmarket/state"
)

// ErrUnknownContract is returned when a contract reference does not resolve
// to a deployed instance.
var ErrUnknownContract = errors.New("core: unknown contract reference")

// snapshotter is implemented by in-memory collaborator contracts so the node
// can roll their state back when a call aborts.
type snapshotter interface {
	Snapshot() func()
}

// Node hosts the engines and collaborator contracts and executes every
// top-level call as one globally serialized, all-or-nothing unit of work:
// engine writes go through a state overlay and collaborator contracts are
// snapshotted, so a failure anywhere in the nested call chain leaves no
// observable change.
type Node struct {
	mu         sync.Mutex
	state      *state.Manager
	market     *market.Engine
	custody    *custody.Engine
	emitter    events.Emitter
	pending    []events.Event
	ledgers    map[types.Address]*token.Ledger
	registries map[types.Address]*token.Collection
}

// NewNode wires the engines to the shared state manager and to the node's
// contract resolver. Engine events are buffered per call and reach the
// node's emitter only when the call commits.
func NewNode(st *state.Manager, marketEngine *market.Engine, custodyEngine *custody.Engine) *Node {
	n := &Node{
		state:      st,
		market:     marketEngine,
		custody:    custodyEngine,
		emitter:    events.NoopEmitter{},
		ledgers:    make(map[types.Address]*token.Ledger),
		registries: make(map[types.Address]*token.Collection),
	}
	marketEngine.SetState(st)
	marketEngine.SetResolver(marketResolver{n})
	marketEngine.SetEmitter(events.EmitterFunc(n.buffer))
	custodyEngine.SetState(st)
	custodyEngine.SetResolver(custodyResolver{n})
	custodyEngine.SetEmitter(events.EmitterFunc(n.buffer))
	return n
}

// SetEmitter configures the sink that receives the events of committed calls.
// Passing nil resets the sink to a no-op implementation.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if emitter == nil {
		n.emitter = events.NoopEmitter{}
		return
	}
	n.emitter = emitter
}

func (n *Node) buffer(evt events.Event) {
	n.pending = append(n.pending, evt)
}

// AddLedger deploys a fungible token contract on the node.
func (n *Node) AddLedger(l *token.Ledger) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ledgers[l.Address()] = l
}

// AddCollection deploys an NFT registry contract on the node. When enforced
// is true the registry consults the custodial layer's transfer filter before
// every ownership change.
func (n *Node) AddCollection(c *token.Collection, enforced bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if enforced {
		c.SetTransferFilter(filterAdapter{n})
	}
	n.registries[c.Address()] = c
}

// execute runs one top-level call. Calls are serialized: cross-contract
// calls are synchronous nested function calls, and concurrent top-level
// calls are ordered by the mutex the way a ledger orders transactions.
func (n *Node) execute(fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	overlay := n.state.Overlay()
	n.market.SetState(overlay)
	n.custody.SetState(overlay)
	defer func() {
		n.market.SetState(n.state)
		n.custody.SetState(n.state)
	}()
	restores := make([]func(), 0, len(n.ledgers)+len(n.registries))
	for _, l := range n.ledgers {
		restores = append(restores, l.Snapshot())
	}
	for _, c := range n.registries {
		restores = append(restores, c.Snapshot())
	}
	n.pending = n.pending[:0]
	if err := fn(); err != nil {
		for _, restore := range restores {
			restore()
		}
		n.pending = n.pending[:0]
		return err
	}
	if err := overlay.Commit(); err != nil {
		n.pending = n.pending[:0]
		return err
	}
	for _, evt := range n.pending {
		n.emitter.Emit(evt)
	}
	n.pending = n.pending[:0]
	return nil
}

func (n *Node) marketCtx(caller types.Address) types.CallContext {
	return types.CallContext{Caller: caller, Self: n.market.Self()}
}

func (n *Node) custodyCtx(caller types.Address) types.CallContext {
	return types.CallContext{Caller: caller, Self: n.custody.Self()}
}

// InstallCustody writes the custodial layer's whitelist state.
func (n *Node) InstallCustody(marketplaces, paymentTokens []types.Address) error {
	return n.execute(func() error {
		return n.custody.Install(marketplaces, paymentTokens)
	})
}

// RegisterQuoteContract onboards a quote-currency contract reference.
func (n *Node) RegisterQuoteContract(caller, ref types.Address) (uint64, error) {
	var id uint64
	err := n.execute(func() error {
		var err error
		id, err = n.market.RegisterQuoteContract(n.marketCtx(caller), ref)
		return err
	})
	return id, err
}

// RegisterAssetContract onboards an NFT registry reference.
func (n *Node) RegisterAssetContract(caller, ref, custodial types.Address) (uint64, error) {
	var id uint64
	err := n.execute(func() error {
		var err error
		id, err = n.market.RegisterAssetContract(n.marketCtx(caller), ref, custodial)
		return err
	})
	return id, err
}

// Post records a listing on behalf of the calling seller.
func (n *Node) Post(caller types.Address, id types.TokenID, assetRef, quoteRef types.Address, price *uint256.Int) (uint64, error) {
	var listingID uint64
	err := n.execute(func() error {
		var err error
		listingID, err = n.market.Post(n.marketCtx(caller), id, assetRef, quoteRef, price)
		return err
	})
	return listingID, err
}

// Bid settles a listing on behalf of the calling bidder.
func (n *Node) Bid(caller types.Address, listingID uint64, amount *uint256.Int) error {
	return n.execute(func() error {
		return n.market.Bid(n.marketCtx(caller), listingID, amount)
	})
}

// Cancel withdraws a listing on behalf of the calling seller.
func (n *Node) Cancel(caller types.Address, listingID uint64) error {
	return n.execute(func() error {
		return n.market.Cancel(n.marketCtx(caller), listingID)
	})
}

// Claim binds the real owner of an asset in the custodial layer.
func (n *Node) Claim(caller types.Address, id types.TokenID, owner types.Address) error {
	return n.execute(func() error {
		return n.custody.Claim(n.custodyCtx(caller), id, owner)
	})
}

// SetDelegate grants or revokes a token's marketplace delegation.
func (n *Node) SetDelegate(caller types.Address, id types.TokenID, delegate types.Address) error {
	return n.execute(func() error {
		return n.custody.SetDelegate(n.custodyCtx(caller), id, delegate)
	})
}

// PayRoyalty records a royalty payment proof in the filter-enforced variant.
// The caller is the marketplace contract holding registry approval.
func (n *Node) PayRoyalty(caller, assetContract types.Address, id types.TokenID, payer, source, target, paymentToken types.Address, amount *uint256.Int) error {
	return n.execute(func() error {
		return n.custody.PayRoyalty(n.custodyCtx(caller), assetContract, id, payer, source, target, paymentToken, amount)
	})
}

// TransferAsset executes a registry transfer as a top-level call, letting a
// royalty-enforcing registry consult (and consume) the payment proof with
// rollback on veto.
func (n *Node) TransferAsset(caller, assetRef types.Address, id types.TokenID, source, target types.Address) error {
	return n.execute(func() error {
		registry, ok := n.registries[assetRef]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownContract, assetRef)
		}
		return registry.Transfer(types.CallContext{Caller: caller, Self: assetRef}, id, source, target)
	})
}

// Listing returns the stored record for an open listing.
func (n *Node) Listing(listingID uint64) (*market.Listing, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.Listing(listingID)
}

// RealOwner returns the custodial layer's tracked owner for a token.
func (n *Node) RealOwner(id types.TokenID) (types.Address, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.custody.RealOwner(id)
}

// Delegate returns the token's active delegate, if any.
func (n *Node) Delegate(id types.TokenID) (types.Address, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.custody.Delegate(id)
}

// RoyaltyQuote computes the royalty the installed structure charges on the
// given payment amount.
func (n *Node) RoyaltyQuote(amount *uint256.Int) (*uint256.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.custody.RoyaltyStructure().CalculateTotalRoyalty(amount)
}

// --- contract resolution ---

func (n *Node) fungible(ref types.Address) (token.Fungible, error) {
	if l, ok := n.ledgers[ref]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownContract, ref)
}

func (n *Node) registry(ref types.Address) (token.Registry, error) {
	if c, ok := n.registries[ref]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownContract, ref)
}

type marketResolver struct {
	n *Node
}

func (r marketResolver) Fungible(ref types.Address) (token.Fungible, error) {
	return r.n.fungible(ref)
}

func (r marketResolver) Registry(ref types.Address) (token.Registry, error) {
	return r.n.registry(ref)
}

func (r marketResolver) Custodial(ref types.Address) (market.Custodial, error) {
	if ref == r.n.custody.Self() {
		return r.n.custody, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownContract, ref)
}

type custodyResolver struct {
	n *Node
}

func (r custodyResolver) Fungible(ref types.Address) (token.Fungible, error) {
	return r.n.fungible(ref)
}

func (r custodyResolver) Registry(ref types.Address) (token.Registry, error) {
	return r.n.registry(ref)
}

func (r custodyResolver) Marketplace(ref types.Address) (custody.Marketplace, error) {
	if ref == r.n.market.Self() {
		return r.n.market, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownContract, ref)
}

// filterAdapter exposes the custodial engine as a registry transfer filter.
type filterAdapter struct {
	n *Node
}

func (f filterAdapter) CanTransfer(ctx types.CallContext, id types.TokenID, source, target types.Address) (uint8, error) {
	return f.n.custody.CanTransfer(ctx, id, source, target)
}
