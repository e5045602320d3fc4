package types

// CallContext carries the identity data of one top-level or nested contract
// call: who issued the call and which contract is executing it. It is computed
// once at the start of every operation and threaded explicitly through the
// engines instead of being cached in process-wide state.
type CallContext struct {
	// Caller is the account or contract that issued the call.
	Caller Address
	// Self is the contract executing the operation.
	Self Address
}

// Nest derives the context for a nested cross-contract call: the executing
// contract becomes the caller of the callee.
func (c CallContext) Nest(callee Address) CallContext {
	return CallContext{Caller: c.Self, Self: callee}
}
