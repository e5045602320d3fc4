package state

import "sort"

// Overlay is a buffered view of the manager: reads fall through to the
// underlying store, writes and deletes stay in memory until Commit. One
// overlay backs exactly one top-level call, giving it all-or-nothing
// semantics: dropping the overlay discards every write the call made.
type Overlay struct {
	Manager
	parent backend
	writes map[string][]byte
	gone   map[string]struct{}
}

// Overlay opens a fresh write buffer on top of the manager.
func (m *Manager) Overlay() *Overlay {
	ov := &Overlay{
		parent: m.kv,
		writes: make(map[string][]byte),
		gone:   make(map[string]struct{}),
	}
	ov.Manager = Manager{kv: overlayBackend{ov: ov}}
	return ov
}

// Commit flushes the buffered writes and deletes to the underlying store.
// Keys are applied in sorted order so commits are deterministic.
func (ov *Overlay) Commit() error {
	keys := make([]string, 0, len(ov.writes))
	for k := range ov.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := ov.parent.put([]byte(k), ov.writes[k]); err != nil {
			return err
		}
	}
	gone := make([]string, 0, len(ov.gone))
	for k := range ov.gone {
		gone = append(gone, k)
	}
	sort.Strings(gone)
	for _, k := range gone {
		if err := ov.parent.delete([]byte(k)); err != nil {
			return err
		}
	}
	ov.writes = make(map[string][]byte)
	ov.gone = make(map[string]struct{})
	return nil
}

type overlayBackend struct {
	ov *Overlay
}

func (b overlayBackend) get(key []byte) ([]byte, bool, error) {
	if value, ok := b.ov.writes[string(key)]; ok {
		return value, true, nil
	}
	if _, ok := b.ov.gone[string(key)]; ok {
		return nil, false, nil
	}
	return b.ov.parent.get(key)
}

func (b overlayBackend) put(key []byte, value []byte) error {
	k := string(key)
	delete(b.ov.gone, k)
	b.ov.writes[k] = append([]byte(nil), value...)
	return nil
}

func (b overlayBackend) delete(key []byte) error {
	k := string(key)
	delete(b.ov.writes, k)
	b.ov.gone[k] = struct{}{}
	return nil
}
