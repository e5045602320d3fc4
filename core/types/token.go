package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/ethereum/go-ethereum/rlp"
)

// Token identifier discriminants as they appear on the wire.
const (
	tokenIDTagIndex byte = 0
	tokenIDTagHash  byte = 1
)

var (
	// ErrInvalidTokenIdentifier is returned when a token identifier cannot be
	// decoded or when neither variant is populated.
	ErrInvalidTokenIdentifier = errors.New("types: invalid token identifier")
)

// TokenID identifies a non-fungible asset within a registry. Registries are
// configured for exactly one identifier mode: dense ordinal indices or opaque
// hash strings. Exactly one variant is populated per identifier.
type TokenID struct {
	hashed bool
	index  uint64
	hash   string
}

// IndexTokenID builds an ordinal token identifier.
func IndexTokenID(index uint64) TokenID {
	return TokenID{index: index}
}

// HashTokenID builds an opaque hash token identifier.
func HashTokenID(hash string) TokenID {
	return TokenID{hashed: true, hash: hash}
}

// Index returns the ordinal value when the identifier is index-mode.
func (t TokenID) Index() (uint64, bool) {
	if t.hashed {
		return 0, false
	}
	return t.index, true
}

// Hash returns the hash string when the identifier is hash-mode.
func (t TokenID) Hash() (string, bool) {
	if !t.hashed {
		return "", false
	}
	return t.hash, true
}

// Bytes returns the canonical encoding: a one-byte discriminant (0 = index,
// 1 = hash) followed by the variant payload. Index payloads are big-endian
// u64, hash payloads are u32-length-prefixed UTF-8 bytes.
func (t TokenID) Bytes() []byte {
	if t.hashed {
		buf := make([]byte, 1+4+len(t.hash))
		buf[0] = tokenIDTagHash
		binary.BigEndian.PutUint32(buf[1:5], uint32(len(t.hash)))
		copy(buf[5:], t.hash)
		return buf
	}
	buf := make([]byte, 1+8)
	buf[0] = tokenIDTagIndex
	binary.BigEndian.PutUint64(buf[1:], t.index)
	return buf
}

// TokenIDFromBytes decodes a token identifier from its canonical encoding.
func TokenIDFromBytes(b []byte) (TokenID, error) {
	if len(b) == 0 {
		return TokenID{}, ErrInvalidTokenIdentifier
	}
	switch b[0] {
	case tokenIDTagIndex:
		if len(b) != 1+8 {
			return TokenID{}, ErrInvalidTokenIdentifier
		}
		return IndexTokenID(binary.BigEndian.Uint64(b[1:])), nil
	case tokenIDTagHash:
		if len(b) < 1+4 {
			return TokenID{}, ErrInvalidTokenIdentifier
		}
		n := binary.BigEndian.Uint32(b[1:5])
		if uint32(len(b)-5) != n {
			return TokenID{}, ErrInvalidTokenIdentifier
		}
		return HashTokenID(string(b[5:])), nil
	default:
		return TokenID{}, ErrInvalidTokenIdentifier
	}
}

// EncodeRLP implements rlp.Encoder so token identifiers can be embedded in
// RLP-encoded records as an opaque byte string.
func (t TokenID) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, t.Bytes())
}

// DecodeRLP implements rlp.Decoder.
func (t *TokenID) DecodeRLP(s *rlp.Stream) error {
	raw, err := s.Bytes()
	if err != nil {
		return err
	}
	decoded, err := TokenIDFromBytes(raw)
	if err != nil {
		return err
	}
	*t = decoded
	return nil
}

func (t TokenID) String() string {
	if t.hashed {
		return "hash:" + t.hash
	}
	return "index:" + strconv.FormatUint(t.index, 10)
}

// Validate reports whether a hash-mode identifier carries a non-empty hash.
func (t TokenID) Validate() error {
	if t.hashed && t.hash == "" {
		return fmt.Errorf("%w: empty hash", ErrInvalidTokenIdentifier)
	}
	return nil
}
