package protocol

// BlockIndex is a pure addressing value: which piece, at what byte offset,
// for how many bytes. It carries no payload. The codec does not enforce
// offset+length <= pieceSize; that bound is checked by the consumer
// against the torrent's metainfo.
type BlockIndex struct {
	Piece  uint32
	Offset uint32
	Length uint32
}

// Block is a piece-addressed payload, the unit carried by a PIECE message.
// Invariant: len(Data) equals the corresponding BlockIndex.Length. A Block
// is "piece-sized" (see IsPiece) when Offset is 0 and len(Data) equals the
// torrent's piece size.
type Block struct {
	Piece  uint32
	Offset uint32
	Data   []byte
}

// PieceIndex returns the sentinel BlockIndex addressing piece as a whole,
// with Offset and Length left at zero. Used where only the piece matters
// (HAVE, SUGGEST_PIECE, ALLOWED_FAST).
func PieceIndex(piece uint32) BlockIndex {
	return BlockIndex{Piece: piece}
}

// IndexOf derives the addressing triple for a payload-bearing block.
func IndexOf(b Block) BlockIndex {
	return BlockIndex{Piece: b.Piece, Offset: b.Offset, Length: uint32(len(b.Data))}
}

// BlockRange returns the absolute [lo, hi) byte range that b occupies
// within the torrent's content, given the torrent's fixed piece size.
// Arithmetic is performed at 64-bit width so large torrents cannot
// overflow: lo = pieceSize*piece + offset, hi = lo + len(data).
func BlockRange(pieceSize int64, b Block) (lo, hi int64) {
	lo = pieceSize*int64(b.Piece) + int64(b.Offset)
	hi = lo + int64(len(b.Data))
	return lo, hi
}

// IndexRange is the BlockIndex analogue of BlockRange, using ix.Length in
// place of a payload's actual length.
func IndexRange(pieceSize int64, ix BlockIndex) (lo, hi int64) {
	lo = pieceSize*int64(ix.Piece) + int64(ix.Offset)
	hi = lo + int64(ix.Length)
	return lo, hi
}

// IsPiece reports whether b addresses an entire piece: offset zero, data
// length equal to pieceSize, and a non-negative piece index (always true
// for the unsigned Piece field; kept for symmetry with spec.md's
// definition).
func IsPiece(pieceSize int64, b Block) bool {
	return b.Offset == 0 && int64(len(b.Data)) == pieceSize
}
