// Package position parses chess positions written in Forsyth-Edwards Notation.
//
// Parse normalizes whitespace, checks every one of the six FEN fields and
// the rules-level consistency of the placement (kings, pawns, castling and
// en-passant), and returns an immutable Position. The board handed to the
// renderer is decoded by github.com/notnil/chess.
package position

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/notnil/chess"
)

// Side identifies the player to move.
type Side string

const (
	White Side = "w"
	Black Side = "b"
)

// Position is a validated chess position. It is immutable after Parse.
type Position struct {
	board     *chess.Board
	placement string
	side      Side
	castling  string
	enPassant string
	halfmove  int
	fullmove  int
}

// Board returns the decoded board for drawing. Callers must not modify it.
func (p *Position) Board() *chess.Board { return p.board }

// Placement returns the piece placement field.
func (p *Position) Placement() string { return p.placement }

// SideToMove returns the side to move.
func (p *Position) SideToMove() Side { return p.side }

// Castling returns the castling availability field ("-" when none).
func (p *Position) Castling() string { return p.castling }

// EnPassant returns the en-passant target square ("-" when none).
func (p *Position) EnPassant() string { return p.enPassant }

// HalfmoveClock returns the halfmove clock.
func (p *Position) HalfmoveClock() int { return p.halfmove }

// FullmoveNumber returns the fullmove number.
func (p *Position) FullmoveNumber() int { return p.fullmove }

// String returns the canonical six-field notation.
func (p *Position) String() string {
	return fmt.Sprintf("%s %s %s %s %d %d",
		p.placement, p.side, p.castling, p.enPassant, p.halfmove, p.fullmove)
}

// Equal reports whether two positions describe the same state.
func (p *Position) Equal(other *Position) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.String() == other.String()
}

// Parse validates notation and returns the position it describes.
// Any failure is reported as *InvalidPositionError.
func Parse(notation string) (*Position, error) {
	fields := strings.Fields(notation)
	if len(fields) != 6 {
		return nil, invalid(notation, "expected 6 fields, got %d", len(fields))
	}

	squares, err := decodePlacement(fields[0])
	if err != nil {
		return nil, invalid(notation, "piece placement: %v", err)
	}

	side := Side(fields[1])
	if side != White && side != Black {
		return nil, invalid(notation, "side to move must be \"w\" or \"b\", got %q", fields[1])
	}

	castling, err := normalizeCastling(fields[2])
	if err != nil {
		return nil, invalid(notation, "castling: %v", err)
	}

	enPassant := fields[3]
	if err := checkEnPassantSyntax(enPassant, side); err != nil {
		return nil, invalid(notation, "en passant: %v", err)
	}

	halfmove, err := strconv.Atoi(fields[4])
	if err != nil || halfmove < 0 {
		return nil, invalid(notation, "halfmove clock must be a non-negative integer, got %q", fields[4])
	}

	fullmove, err := strconv.Atoi(fields[5])
	if err != nil || fullmove < 1 {
		return nil, invalid(notation, "fullmove number must be a positive integer, got %q", fields[5])
	}

	if err := checkMaterial(squares); err != nil {
		return nil, invalid(notation, "%v", err)
	}
	if err := checkCastlingSquares(castling, squares); err != nil {
		return nil, invalid(notation, "castling: %v", err)
	}
	if err := checkEnPassantPawn(enPassant, side, squares); err != nil {
		return nil, invalid(notation, "en passant: %v", err)
	}
	if err := checkIdleKing(fields[0], side, squares); err != nil {
		return nil, invalid(notation, "%v", err)
	}

	// The engine evaluates check status on load, which needs both kings,
	// so it only sees notation that passed the checks above.
	normalized := strings.Join([]string{fields[0], fields[1], castling, enPassant, fields[4], fields[5]}, " ")
	opt, err := chess.FEN(normalized)
	if err != nil {
		return nil, invalid(notation, "%v", err)
	}
	board := chess.NewGame(opt).Position().Board()

	return &Position{
		board:     board,
		placement: board.String(),
		side:      side,
		castling:  castling,
		enPassant: enPassant,
		halfmove:  halfmove,
		fullmove:  fullmove,
	}, nil
}

// checkIdleKing rejects placements where the side to move could capture
// the opposing king. The mover's own king is lifted off the board first so
// pinned attackers still count.
func checkIdleKing(placement string, side Side, squares map[string]rune) error {
	mover, idle := 'K', 'k'
	if side == Black {
		mover, idle = 'k', 'K'
	}
	target := ""
	for sq, piece := range squares {
		if piece == idle {
			target = sq
		}
	}

	var pos chess.Position
	lifted := strings.Replace(placement, string(mover), "1", 1)
	if err := pos.UnmarshalText([]byte(lifted + " " + string(side) + " - - 0 1")); err != nil {
		return err
	}
	for _, m := range pos.ValidMoves() {
		if m.S2().String() == target {
			return fmt.Errorf("side not to move is in check from %s", m.S1())
		}
	}
	return nil
}

// MustParse is Parse for positions known to be valid. It panics on error.
func MustParse(notation string) *Position {
	p, err := Parse(notation)
	if err != nil {
		panic(err)
	}
	return p
}

// StartingPosition is the notation of the standard initial position.
const StartingPosition = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// decodePlacement maps square names ("e4") to piece letters.
func decodePlacement(placement string) (map[string]rune, error) {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return nil, fmt.Errorf("expected 8 ranks, got %d", len(ranks))
	}
	squares := make(map[string]rune, 32)
	for i, rank := range ranks {
		rankName := byte('8' - i)
		file := 0
		for _, r := range rank {
			switch {
			case r >= '1' && r <= '8':
				file += int(r - '0')
			case strings.ContainsRune("pnbrqkPNBRQK", r):
				if file < 8 {
					squares[string([]byte{byte('a' + file), rankName})] = r
				}
				file++
			default:
				return nil, fmt.Errorf("illegal character %q in rank %c", r, rankName)
			}
		}
		if file != 8 {
			return nil, fmt.Errorf("rank %c covers %d squares, want 8", rankName, file)
		}
	}
	return squares, nil
}

// normalizeCastling orders rights as KQkq and rejects unknown or repeated letters.
func normalizeCastling(field string) (string, error) {
	if field == "-" {
		return field, nil
	}
	seen := make(map[rune]bool, 4)
	for _, r := range field {
		if !strings.ContainsRune("KQkq", r) {
			return "", fmt.Errorf("illegal character %q", r)
		}
		if seen[r] {
			return "", fmt.Errorf("repeated right %q", r)
		}
		seen[r] = true
	}
	var b strings.Builder
	for _, r := range "KQkq" {
		if seen[r] {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func checkEnPassantSyntax(field string, side Side) error {
	if field == "-" {
		return nil
	}
	if len(field) != 2 || field[0] < 'a' || field[0] > 'h' {
		return fmt.Errorf("%q is not a square", field)
	}
	want := byte('6')
	if side == Black {
		want = '3'
	}
	if field[1] != want {
		return fmt.Errorf("target %s must be on rank %c when %s is to move", field, want, side)
	}
	return nil
}

func checkMaterial(squares map[string]rune) error {
	kings := map[rune]int{}
	for sq, piece := range squares {
		switch piece {
		case 'K', 'k':
			kings[piece]++
		case 'P', 'p':
			if sq[1] == '1' || sq[1] == '8' {
				return fmt.Errorf("pawn on back rank at %s", sq)
			}
		}
	}
	if kings['K'] != 1 {
		return fmt.Errorf("white must have exactly one king, found %d", kings['K'])
	}
	if kings['k'] != 1 {
		return fmt.Errorf("black must have exactly one king, found %d", kings['k'])
	}
	return nil
}

// castleHome lists the king and rook each right depends on.
var castleHome = map[rune]struct {
	king, kingSq string
	rook, rookSq string
}{
	'K': {"K", "e1", "R", "h1"},
	'Q': {"K", "e1", "R", "a1"},
	'k': {"k", "e8", "r", "h8"},
	'q': {"k", "e8", "r", "a8"},
}

func checkCastlingSquares(castling string, squares map[string]rune) error {
	if castling == "-" {
		return nil
	}
	for _, r := range castling {
		home := castleHome[r]
		if string(squares[home.kingSq]) != home.king {
			return fmt.Errorf("right %q requires a king on %s", r, home.kingSq)
		}
		if string(squares[home.rookSq]) != home.rook {
			return fmt.Errorf("right %q requires a rook on %s", r, home.rookSq)
		}
	}
	return nil
}

// checkEnPassantPawn requires the pawn that just double-stepped to sit in
// front of the target square and the squares it crossed to be empty.
func checkEnPassantPawn(field string, side Side, squares map[string]rune) error {
	if field == "-" {
		return nil
	}
	file := field[:1]
	pawnSq, fromSq, pawn := file+"5", file+"7", 'p'
	if side == Black {
		pawnSq, fromSq, pawn = file+"4", file+"2", 'P'
	}
	if squares[pawnSq] != pawn {
		return fmt.Errorf("no pawn on %s for target %s", pawnSq, field)
	}
	if _, occupied := squares[field]; occupied {
		return fmt.Errorf("target %s is occupied", field)
	}
	if _, occupied := squares[fromSq]; occupied {
		return fmt.Errorf("origin %s of the double step is occupied", fromSq)
	}
	return nil
}

func invalid(notation, format string, args ...any) error {
	return &InvalidPositionError{Notation: notation, Reason: fmt.Sprintf(format, args...)}
}
