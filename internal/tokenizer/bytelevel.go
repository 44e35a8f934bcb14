package tokenizer

import "fmt"

// ByteLevel is the simplest tokenizer satisfying §4.6: every UTF-8
// byte of the input is its own token, ids 0-255, plus BOS/EOS ids at
// the top of the space. Decode concatenates the raw bytes back,
// which makes the incremental-safety requirement trivially true: byte
// N's contribution to the output never depends on any other byte.
type ByteLevel struct {
	bosID, eosID TokenID
}

// NewByteLevel constructs a ByteLevel tokenizer with BOS=256, EOS=257.
func NewByteLevel() *ByteLevel {
	return &ByteLevel{bosID: 256, eosID: 257}
}

func (b *ByteLevel) VocabSize() int            { return 258 }
func (b *ByteLevel) BOSID() TokenID            { return b.bosID }
func (b *ByteLevel) EOSID() TokenID            { return b.eosID }
func (b *ByteLevel) PadID() TokenID            { return NoPad }
func (b *ByteLevel) UnkID() TokenID            { return NoUnk }
func (b *ByteLevel) SupportsByteFallback() bool { return true }

// Encode converts text to one token per UTF-8 byte (owning API).
func (b *ByteLevel) Encode(text string) []TokenID {
	out := make([]TokenID, len(text))
	b.EncodeInto(text, out)
	return out
}

// EncodeInto is the non-allocating span API of §4.6: it writes into a
// caller-provided buffer and returns how many tokens were written, or
// an error if out is too small.
func (b *ByteLevel) EncodeInto(text string, out []TokenID) (int, error) {
	if len(out) < len(text) {
		return 0, fmt.Errorf("tokenizer: encode_into: out has %d slots, need %d", len(out), len(text))
	}
	for i := 0; i < len(text); i++ {
		out[i] = TokenID(text[i])
	}
	return len(text), nil
}

// Decode converts tokens back to text (owning API). Tokens outside
// [0,255] (BOS/EOS/special ids) are skipped, never emitted as bytes.
func (b *ByteLevel) Decode(tokens []TokenID) string {
	dst := make([]byte, b.decodedLen(tokens))
	b.DecodeInto(tokens, dst)
	return string(dst)
}

func (b *ByteLevel) decodedLen(tokens []TokenID) int {
	n := 0
	for _, t := range tokens {
		if t >= 0 && t <= 255 {
			n++
		}
	}
	return n
}

// DecodeInto is the non-allocating span API: writes decoded bytes into
// out and returns the count written, or an error if out is too small.
func (b *ByteLevel) DecodeInto(tokens []TokenID, out []byte) (int, error) {
	need := b.decodedLen(tokens)
	if len(out) < need {
		return 0, fmt.Errorf("tokenizer: decode_into: out has %d bytes, need %d", len(out), need)
	}
	n := 0
	for _, t := range tokens {
		if t >= 0 && t <= 255 {
			out[n] = byte(t)
			n++
		}
	}
	return n, nil
}
