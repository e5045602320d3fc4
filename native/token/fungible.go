package token

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"

	"nftmarket/core/types"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrBalanceOverflow       = errors.New("token: balance overflow")
)

type allowanceKey struct {
	owner   types.Address
	spender types.Address
}

// Ledger is an in-memory fungible token with the standard transfer,
// transfer_from, approve and balance_of surface.
type Ledger struct {
	mu         sync.Mutex
	addr       types.Address
	balances   map[types.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
}

// NewLedger creates an empty ledger deployed at the given contract address.
func NewLedger(addr types.Address) *Ledger {
	return &Ledger{
		addr:       addr,
		balances:   make(map[types.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
	}
}

// Address returns the contract address the ledger is deployed at.
func (l *Ledger) Address() types.Address { return l.addr }

// Mint credits freshly created funds to an account. Test and genesis helper.
func (l *Ledger) Mint(to types.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credit(to, amount)
}

func (l *Ledger) Transfer(ctx types.CallContext, recipient types.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(ctx.Caller, recipient, amount)
}

func (l *Ledger) TransferFrom(ctx types.CallContext, owner, recipient types.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if owner != ctx.Caller {
		key := allowanceKey{owner: owner, spender: ctx.Caller}
		allowance, ok := l.allowances[key]
		if !ok || allowance.Lt(amount) {
			return ErrInsufficientAllowance
		}
		l.allowances[key] = new(uint256.Int).Sub(allowance, amount)
	}
	return l.move(owner, recipient, amount)
}

func (l *Ledger) Approve(ctx types.CallContext, spender types.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey{owner: ctx.Caller, spender: spender}] = clone(amount)
	return nil
}

func (l *Ledger) BalanceOf(owner types.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return clone(l.balances[owner]), nil
}

// Snapshot captures the full ledger state so a failed top-level call can be
// rolled back by the host.
func (l *Ledger) Snapshot() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	balances := make(map[types.Address]*uint256.Int, len(l.balances))
	for k, v := range l.balances {
		balances[k] = clone(v)
	}
	allowances := make(map[allowanceKey]*uint256.Int, len(l.allowances))
	for k, v := range l.allowances {
		allowances[k] = clone(v)
	}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.balances = balances
		l.allowances = allowances
	}
}

func (l *Ledger) move(from, to types.Address, amount *uint256.Int) error {
	amount = clone(amount)
	balance := l.balances[from]
	if balance == nil || balance.Lt(amount) {
		return ErrInsufficientBalance
	}
	l.balances[from] = new(uint256.Int).Sub(balance, amount)
	return l.credit(to, amount)
}

func (l *Ledger) credit(to types.Address, amount *uint256.Int) error {
	balance := l.balances[to]
	if balance == nil {
		balance = new(uint256.Int)
	}
	sum := new(uint256.Int)
	if _, overflow := sum.AddOverflow(balance, clone(amount)); overflow {
		return ErrBalanceOverflow
	}
	l.balances[to] = sum
	return nil
}

func clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
