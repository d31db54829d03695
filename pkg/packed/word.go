// Package packed packs fixed-width unsigned values into 256-bit storage words.
//
// A word holds Layout.ItemsPerWord() values side by side, position 0 in the least significant
// bits. Bits above ItemsPerWord()*BitWidth() are never written, so a 48-bit layout leaves the top
// 16 bits of every word at zero.
package packed

import (
	"github.com/holiman/uint256"
	"github.com/rotisserie/eris"
)

// WordBits is the size of a storage word.
const WordBits = 256

// WordBytes is the size of an encoded storage word.
const WordBytes = WordBits / 8

// Word is a single storage word.
type Word = uint256.Int

// EncodeWord returns the 32-byte big-endian encoding of w.
func EncodeWord(w *Word) []byte {
	b := w.Bytes32()
	return b[:]
}

// DecodeWord decodes a word produced by EncodeWord.
func DecodeWord(bz []byte) (Word, error) {
	var w Word
	if len(bz) != WordBytes {
		return w, eris.Wrapf(ErrInvalidWord, "got %d bytes", len(bz))
	}
	w.SetBytes32(bz)
	return w, nil
}
