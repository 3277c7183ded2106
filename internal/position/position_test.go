package position

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParse_StartingPosition(t *testing.T) {
	p, err := Parse(StartingPosition)
	require.NoError(t, err)

	require.Equal(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR", p.Placement())
	require.Equal(t, White, p.SideToMove())
	require.Equal(t, "KQkq", p.Castling())
	require.Equal(t, "-", p.EnPassant())
	require.Equal(t, 0, p.HalfmoveClock())
	require.Equal(t, 1, p.FullmoveNumber())
	require.Equal(t, StartingPosition, p.String())
	require.NotNil(t, p.Board())
}

func TestParse_NormalizesWhitespace(t *testing.T) {
	p, err := Parse("  rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR \t w   KQkq -  0 1\n")
	require.NoError(t, err)
	require.Equal(t, StartingPosition, p.String())
}

func TestParse_CanonicalizesCastlingOrder(t *testing.T) {
	p, err := Parse("r3k2r/8/8/8/8/8/8/R3K2R w qkQK - 0 1")
	require.NoError(t, err)
	require.Equal(t, "KQkq", p.Castling())
}

func TestParse_AcceptsEnPassantAfterDoubleStep(t *testing.T) {
	p, err := Parse("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1")
	require.NoError(t, err)
	require.Equal(t, "e3", p.EnPassant())
	require.Equal(t, Black, p.SideToMove())
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		notation string
		reason   string
	}{
		{"empty", "", "expected 6 fields, got 0"},
		{"garbage", "invalid-fen-string", "expected 6 fields, got 1"},
		{"too few fields", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -", "expected 6 fields"},
		{"too many fields", StartingPosition + " extra", "expected 6 fields, got 7"},
		{"illegal piece letter", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNX w KQkq - 0 1", "illegal character 'X'"},
		{"short rank", "rnbqkbnr/ppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", "rank 7 covers 7 squares"},
		{"seven ranks", "rnbqkbnr/pppppppp/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", "expected 8 ranks"},
		{"bad side", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR x KQkq - 0 1", "side to move"},
		{"bad castling letter", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkx - 0 1", "illegal character 'x'"},
		{"repeated castling", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KKkq - 0 1", "repeated right"},
		{"castling without rook", "rnbqkbn1/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", "requires a rook on h8"},
		{"castling without king", "rnbq1bnr/ppppkppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", "requires a king on e8"},
		{"en passant wrong rank", "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e6 0 1", "must be on rank 3"},
		{"en passant not a square", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq z9 0 1", "is not a square"},
		{"en passant without pawn", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b KQkq e3 0 1", "no pawn on e4"},
		{"negative halfmove", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - -1 1", "halfmove clock"},
		{"non-numeric halfmove", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - x 1", "halfmove clock"},
		{"zero fullmove", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 0", "fullmove number"},
		{"missing white king", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQ1BNR w kq - 0 1", "white must have exactly one king, found 0"},
		{"two black kings", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNk w - - 0 1", "black must have exactly one king, found 2"},
		{"pawn on back rank", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNP w Qkq - 0 1", "pawn on back rank at h1"},
		{"idle king in check", "4k3/4R3/8/8/8/8/8/4K3 w - - 0 1", "side not to move is in check from e7"},
		{"idle king in check from pinned knight", "8/8/5k2/8/r3N2K/8/8/8 w - - 0 1", "side not to move is in check from e4"},
		{"idle white king in check", "4k3/8/8/8/8/5n2/8/4K3 b - - 0 1", "side not to move is in check from f3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.notation)
			require.Nil(t, p)
			require.Error(t, err)

			var invalidErr *InvalidPositionError
			require.True(t, errors.As(err, &invalidErr), "expected *InvalidPositionError, got %T", err)
			require.Equal(t, tt.notation, invalidErr.Notation)
			require.Contains(t, invalidErr.Reason, tt.reason)
			require.Contains(t, err.Error(), "invalid position")
		})
	}
}

func TestParse_SideToMoveMayBeInCheck(t *testing.T) {
	p, err := Parse("4k3/4R3/8/8/8/8/8/4K3 b - - 0 1")
	require.NoError(t, err)
	require.Equal(t, Black, p.SideToMove())
}

func TestMustParse_Panics(t *testing.T) {
	require.Panics(t, func() { MustParse("nope") })
	require.NotPanics(t, func() { MustParse(StartingPosition) })
}

func TestEqual(t *testing.T) {
	a := MustParse(StartingPosition)
	b := MustParse(" " + StartingPosition + " ")
	c := MustParse("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b KQkq - 0 1")

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
	require.False(t, a.Equal(nil))
}

// genPlacement draws a board with one king per side, no pawns on the back
// ranks and a handful of other pieces.
func genPlacement(t *rapid.T) string {
	var grid [8][8]rune // [rank][file], rank 0 is the eighth rank

	free := func() (int, int) {
		for {
			r := rapid.IntRange(0, 7).Draw(t, "rank")
			f := rapid.IntRange(0, 7).Draw(t, "file")
			if grid[r][f] == 0 {
				return r, f
			}
		}
	}

	r, f := free()
	grid[r][f] = 'K'
	r, f = free()
	grid[r][f] = 'k'

	n := rapid.IntRange(0, 20).Draw(t, "pieces")
	for i := 0; i < n; i++ {
		piece := rapid.SampledFrom([]rune("PNBRQpnbrq")).Draw(t, "piece")
		r, f := free()
		if (piece == 'P' || piece == 'p') && (r == 0 || r == 7) {
			continue
		}
		grid[r][f] = piece
	}

	ranks := make([]string, 8)
	for r := 0; r < 8; r++ {
		var b strings.Builder
		empty := 0
		for f := 0; f < 8; f++ {
			if grid[r][f] == 0 {
				empty++
				continue
			}
			if empty > 0 {
				fmt.Fprintf(&b, "%d", empty)
				empty = 0
			}
			b.WriteRune(grid[r][f])
		}
		if empty > 0 {
			fmt.Fprintf(&b, "%d", empty)
		}
		ranks[r] = b.String()
	}
	return strings.Join(ranks, "/")
}

func TestParse_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		placement := genPlacement(t)
		squares, err := decodePlacement(placement)
		if err != nil {
			t.Fatalf("generated placement undecodable: %v", err)
		}
		side := Side(rapid.SampledFrom([]string{"w", "b"}).Draw(t, "side"))
		if checkIdleKing(placement, side, squares) != nil {
			side = map[Side]Side{White: Black, Black: White}[side]
		}
		notation := fmt.Sprintf("%s %s - - %d %d",
			placement,
			side,
			rapid.IntRange(0, 99).Draw(t, "halfmove"),
			rapid.IntRange(1, 300).Draw(t, "fullmove"),
		)

		p, err := Parse(notation)
		if err != nil {
			// both kings attacked: no side to move makes the board legal
			if checkIdleKing(placement, side, squares) != nil && strings.Contains(err.Error(), "side not to move is in check") {
				return
			}
			t.Fatalf("generated notation rejected: %v", err)
		}
		if p.String() != notation {
			t.Fatalf("canonical form %q differs from input %q", p.String(), notation)
		}

		again, err := Parse(p.String())
		if err != nil {
			t.Fatalf("canonical form rejected: %v", err)
		}
		if !again.Equal(p) {
			t.Fatalf("round trip changed position: %q -> %q", p, again)
		}
	})
}

func TestParse_WhitespaceInsensitive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sep := rapid.SampledFrom([]string{" ", "  ", "\t", " \t "}).Draw(t, "sep")
		pad := rapid.SampledFrom([]string{"", " ", "\n", "\t "}).Draw(t, "pad")
		notation := pad + strings.Join(strings.Fields(StartingPosition), sep) + pad

		p, err := Parse(notation)
		if err != nil {
			t.Fatalf("rejected %q: %v", notation, err)
		}
		if p.String() != StartingPosition {
			t.Fatalf("got %q", p.String())
		}
	})
}
