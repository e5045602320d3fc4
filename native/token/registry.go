package token

import (
	"errors"
	"sync"

	"nftmarket/core/types"
)

var (
	ErrUnknownToken       = errors.New("token: unknown token")
	ErrNotOwner           = errors.New("token: source is not the owner")
	ErrTransferNotAllowed = errors.New("token: caller may not transfer this token")
	ErrTransferVetoed     = errors.New("token: transfer vetoed by filter")
)

// Collection is an in-memory NFT registry. When a transfer filter is
// registered, every ownership mutation consults it first; a Deny verdict
// aborts the transfer before any record changes.
type Collection struct {
	mu       sync.Mutex
	addr     types.Address
	owners   map[types.TokenID]types.Address
	approved map[types.TokenID]types.Address
	metadata map[types.TokenID]string
	filter   TransferFilter
}

// NewCollection creates an empty registry deployed at the given address.
func NewCollection(addr types.Address) *Collection {
	return &Collection{
		addr:     addr,
		owners:   make(map[types.TokenID]types.Address),
		approved: make(map[types.TokenID]types.Address),
		metadata: make(map[types.TokenID]string),
	}
}

// Address returns the contract address the registry is deployed at.
func (c *Collection) Address() types.Address { return c.addr }

// SetTransferFilter registers the royalty-enforcement callback. Passing nil
// removes the filter.
func (c *Collection) SetTransferFilter(f TransferFilter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = f
}

// Mint records a new token. Test and genesis helper.
func (c *Collection) Mint(id types.TokenID, owner types.Address, meta string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners[id] = owner
	c.metadata[id] = meta
}

func (c *Collection) OwnerOf(id types.TokenID) (types.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[id]
	if !ok {
		return types.Address{}, ErrUnknownToken
	}
	return owner, nil
}

func (c *Collection) Transfer(ctx types.CallContext, id types.TokenID, source, target types.Address) error {
	c.mu.Lock()
	filter := c.filter
	owner, ok := c.owners[id]
	approved := c.approved[id]
	c.mu.Unlock()
	if !ok {
		return ErrUnknownToken
	}
	if owner != source {
		return ErrNotOwner
	}
	if ctx.Caller != owner && ctx.Caller != approved {
		return ErrTransferNotAllowed
	}
	if filter != nil {
		verdict, err := filter.CanTransfer(types.CallContext{Caller: c.addr}, id, source, target)
		if err != nil {
			return err
		}
		if verdict != Proceed {
			return ErrTransferVetoed
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners[id] = target
	delete(c.approved, id)
	return nil
}

// Approve grants a single operator the right to transfer the token. Only the
// current owner may approve.
func (c *Collection) Approve(ctx types.CallContext, id types.TokenID, operator types.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[id]
	if !ok {
		return ErrUnknownToken
	}
	if ctx.Caller != owner {
		return ErrTransferNotAllowed
	}
	c.approved[id] = operator
	return nil
}

func (c *Collection) GetApproved(id types.TokenID) (types.Address, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.owners[id]; !ok {
		return types.Address{}, false, ErrUnknownToken
	}
	operator, ok := c.approved[id]
	return operator, ok, nil
}

func (c *Collection) Metadata(id types.TokenID) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta, ok := c.metadata[id]
	if !ok {
		return "", ErrUnknownToken
	}
	return meta, nil
}

// Snapshot captures the registry state for host-level rollback.
func (c *Collection) Snapshot() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	owners := make(map[types.TokenID]types.Address, len(c.owners))
	for k, v := range c.owners {
		owners[k] = v
	}
	approved := make(map[types.TokenID]types.Address, len(c.approved))
	for k, v := range c.approved {
		approved[k] = v
	}
	metadata := make(map[types.TokenID]string, len(c.metadata))
	for k, v := range c.metadata {
		metadata[k] = v
	}
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.owners = owners
		c.approved = approved
		c.metadata = metadata
	}
}
