package protocol

import "testing"

func TestPieceIndexSentinel(t *testing.T) {
	ix := PieceIndex(7)
	if ix.Piece != 7 || ix.Offset != 0 || ix.Length != 0 {
		t.Fatalf("PieceIndex(7) = %+v, want {7 0 0}", ix)
	}
}

func TestIndexOfDerivesFromBlock(t *testing.T) {
	b := Block{Piece: 2, Offset: 16384, Data: make([]byte, 100)}
	ix := IndexOf(b)

	want := BlockIndex{Piece: 2, Offset: 16384, Length: 100}
	if ix != want {
		t.Fatalf("IndexOf = %+v, want %+v", ix, want)
	}
}

// TestBlockRangeLaw covers spec.md's "range law": block_range(p, b) =
// (p*b.piece + b.offset, p*b.piece + b.offset + len(data)).
func TestBlockRangeLaw(t *testing.T) {
	const pieceSize = int64(1 << 18)
	b := Block{Piece: 5, Offset: 4096, Data: make([]byte, 16384)}

	lo, hi := BlockRange(pieceSize, b)

	wantLo := pieceSize*5 + 4096
	wantHi := wantLo + 16384
	if lo != wantLo || hi != wantHi {
		t.Fatalf("BlockRange = (%d,%d), want (%d,%d)", lo, hi, wantLo, wantHi)
	}
}

func TestBlockRangeWide64BitArithmetic(t *testing.T) {
	// A piece index large enough that 32-bit multiplication would overflow.
	const pieceSize = int64(1 << 20)
	b := Block{Piece: 1 << 20, Offset: 0, Data: make([]byte, 1)}

	lo, hi := BlockRange(pieceSize, b)
	wantLo := pieceSize * (1 << 20)
	if lo != wantLo || hi != wantLo+1 {
		t.Fatalf("BlockRange overflowed: got (%d,%d), want (%d,%d)", lo, hi, wantLo, wantLo+1)
	}
}

func TestIndexRangeMatchesBlockRange(t *testing.T) {
	const pieceSize = int64(1 << 16)
	b := Block{Piece: 3, Offset: 8192, Data: make([]byte, 2048)}
	ix := IndexOf(b)

	lo1, hi1 := BlockRange(pieceSize, b)
	lo2, hi2 := IndexRange(pieceSize, ix)

	if lo1 != lo2 || hi1 != hi2 {
		t.Fatalf("IndexRange(%v) = (%d,%d), BlockRange = (%d,%d)", ix, lo2, hi2, lo1, hi1)
	}
}

func TestIsPiece(t *testing.T) {
	const pieceSize = int64(32768)

	whole := Block{Piece: 1, Offset: 0, Data: make([]byte, 32768)}
	if !IsPiece(pieceSize, whole) {
		t.Fatalf("expected whole-piece block to be recognized")
	}

	partial := Block{Piece: 1, Offset: 16384, Data: make([]byte, 16384)}
	if IsPiece(pieceSize, partial) {
		t.Fatalf("non-zero offset must not be a piece-sized block")
	}

	short := Block{Piece: 1, Offset: 0, Data: make([]byte, 100)}
	if IsPiece(pieceSize, short) {
		t.Fatalf("undersized payload must not be a piece-sized block")
	}
}
