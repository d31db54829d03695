// Package setid names dense sets: owners are account addresses and set identifiers are opaque
// 32-byte hashes derived from a semantic tag plus correlating parameters.
package setid

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/rotisserie/eris"
)

// Owner is the principal whose namespace a set lives in. Sets of different owners never share
// state, even under the same SetID.
type Owner = common.Address

// SetID names one set inside an owner's namespace. It is never interpreted by the store.
type SetID = common.Hash

// Derive hashes tag and params into a SetID. The tag is preceded by its length as one 32-byte word
// and each param is encoded as one 32-byte word (integers and addresses left padded, hashes as-is,
// byte strings and strings by their keccak hash) so the encoding is unambiguous. Derive panics on an
// unsupported param type or a nil *uint256.Int, which is a programming error rather than a data
// problem.
func Derive(tag string, params ...any) SetID {
	buf := make([]byte, 0, 32+len(tag)+32*len(params))
	tagLen := uint64Word(uint64(len(tag)))
	buf = append(buf, tagLen[:]...)
	buf = append(buf, tag...)
	for _, p := range params {
		word := encodeParam(p)
		buf = append(buf, word[:]...)
	}
	return crypto.Keccak256Hash(buf)
}

func encodeParam(p any) [32]byte { //nolint:gocyclo // flat type switch
	switch v := p.(type) {
	case uint8:
		return uint64Word(uint64(v))
	case uint16:
		return uint64Word(uint64(v))
	case uint32:
		return uint64Word(uint64(v))
	case uint64:
		return uint64Word(v)
	case uint:
		return uint64Word(uint64(v))
	case int:
		return bigWord(big.NewInt(int64(v)))
	case int32:
		return bigWord(big.NewInt(int64(v)))
	case int64:
		return bigWord(big.NewInt(v))
	case common.Address:
		return common.BytesToHash(v.Bytes())
	case common.Hash:
		return v
	case *uint256.Int:
		if v == nil {
			panic("setid: unsupported param nil *uint256.Int")
		}
		return v.Bytes32()
	case []byte:
		return crypto.Keccak256Hash(v)
	case string:
		return crypto.Keccak256Hash([]byte(v))
	case fmt.Stringer:
		return crypto.Keccak256Hash([]byte(v.String()))
	default:
		panic(fmt.Sprintf("setid: unsupported param type %T", p))
	}
}

func uint64Word(v uint64) [32]byte {
	return uint256.NewInt(v).Bytes32()
}

// bigWord encodes signed integers in two's complement, matching a 256-bit signed word.
func bigWord(v *big.Int) [32]byte {
	var u uint256.Int
	if v.Sign() >= 0 {
		u.SetFromBig(v)
	} else {
		u.SetFromBig(new(big.Int).Neg(v))
		u.Neg(&u)
	}
	return u.Bytes32()
}

// ParseOwner parses a hex account address.
func ParseOwner(s string) (Owner, error) {
	if !common.IsHexAddress(s) {
		return Owner{}, eris.Errorf("invalid owner address %q", s)
	}
	return common.HexToAddress(s), nil
}

// ParseSetID parses a 0x-prefixed 32-byte hex set identifier.
func ParseSetID(s string) (SetID, error) {
	bz, err := hexutil.Decode(s)
	if err != nil || len(bz) != common.HashLength {
		return SetID{}, eris.Errorf("invalid set id %q", s)
	}
	return common.BytesToHash(bz), nil
}
