package storage

import (
	"strconv"
	"strings"

	"github.com/argus-labs/denseset/pkg/setid"
	"github.com/rotisserie/eris"
)

const keyPrefix = "DENSESET"

// SetKeys builds the keys holding one set's persisted state:
//
//	DENSESET:<ns>:<owner>:<set>:LEN      number of elements, absent when the set is empty
//	DENSESET:<ns>:<owner>:<set>:W:<i>    packed word i (fixed-width sets)
//	DENSESET:<ns>:<owner>:<set>:S:<i>    element at slot i (variable-width sets)
//	DENSESET:<ns>:<owner>:<set>:I:<e>    one-based position of element e
type SetKeys struct {
	prefix string
}

func NewSetKeys(namespace string, owner setid.Owner, set setid.SetID) SetKeys {
	var sb strings.Builder
	sb.WriteString(keyPrefix)
	sb.WriteByte(':')
	sb.WriteString(namespace)
	sb.WriteByte(':')
	sb.WriteString(strings.ToLower(owner.Hex()))
	sb.WriteByte(':')
	sb.WriteString(set.Hex())
	sb.WriteByte(':')
	return SetKeys{prefix: sb.String()}
}

// Prefix is shared by every key of the set.
func (k SetKeys) Prefix() string { return k.prefix }

func (k SetKeys) Length() string { return k.prefix + "LEN" }

func (k SetKeys) WordPrefix() string { return k.prefix + "W:" }

func (k SetKeys) Word(i uint64) string { return k.WordPrefix() + strconv.FormatUint(i, 10) }

func (k SetKeys) SlotPrefix() string { return k.prefix + "S:" }

func (k SetKeys) Slot(i uint64) string { return k.SlotPrefix() + strconv.FormatUint(i, 10) }

// Index returns the reverse index key of an element given its canonical text form.
func (k SetKeys) Index(member string) string { return k.prefix + "I:" + member }

// EncodeUint64 encodes counters and positions as decimal text, the same form redis uses for
// integers.
func EncodeUint64(v uint64) []byte {
	return strconv.AppendUint(nil, v, 10)
}

func DecodeUint64(bz []byte) (uint64, error) {
	v, err := strconv.ParseUint(string(bz), 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid integer value %q", bz)
	}
	return v, nil
}
