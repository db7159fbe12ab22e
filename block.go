package rdiff

import "bytes"

/// Signature record of one block of the basis file.
type BlockSignature struct {
	Weak   uint32 /// rolling checksum of the block
	Strong []byte /// strong sum prefix, StrongLen bytes long
}

// NewBlockSignature copies strong so the caller may reuse its buffer.
func NewBlockSignature(weak uint32, strong []byte) BlockSignature {
	return BlockSignature{
		Weak:   weak,
		Strong: append(strong[:0:0], strong...),
	}
}

func (bs BlockSignature) Equal(other BlockSignature) bool {
	return bs.Weak == other.Weak && bytes.Equal(bs.Strong, other.Strong)
}
