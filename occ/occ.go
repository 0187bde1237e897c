// Package occ decodes OCC-format options symbols such as
// O:AAPL240119C00250000 into their underlying, expiry, right and strike.
package occ

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSymbol is returned for any symbol that does not match the
// OCC layout {UNDERLYING}{YYMMDD}{C|P}{STRIKE*1000, 8 digits}.
var ErrInvalidSymbol = errors.New("invalid_symbol")

// Right of an options contract.
const (
	Call byte = 'C'
	Put  byte = 'P'
)

// Contract is a decoded options symbol.
type Contract struct {
	Underlying string
	Expiry     time.Time // midnight UTC of the expiry date
	Right      byte      // Call or Put
	Strike     float64
}

// tail length after the underlying: YYMMDD (6) + right (1) + strike (8)
const tailLen = 15

// Parse decodes an OCC symbol. The optional "O:" prefix is stripped.
// The underlying is the maximal leading run of letters; the remainder
// partitions positionally. Parse does not allocate on the happy path
// beyond the underlying substring.
func Parse(symbol string) (Contract, error) {
	s := symbol
	if len(s) >= 2 && s[0] == 'O' && s[1] == ':' {
		s = s[2:]
	}

	// maximal leading run of letters
	i := 0
	for i < len(s) && isLetter(s[i]) {
		i++
	}
	if i == 0 || len(s)-i != tailLen {
		return Contract{}, ErrInvalidSymbol
	}

	underlying := s[:i]
	tail := s[i:]

	yy, ok1 := digits2(tail[0], tail[1])
	mm, ok2 := digits2(tail[2], tail[3])
	dd, ok3 := digits2(tail[4], tail[5])
	if !ok1 || !ok2 || !ok3 || mm < 1 || mm > 12 || dd < 1 || dd > 31 {
		return Contract{}, ErrInvalidSymbol
	}

	right := tail[6]
	if right != Call && right != Put {
		return Contract{}, ErrInvalidSymbol
	}

	strikeMillis := 0
	for j := 7; j < tailLen; j++ {
		c := tail[j]
		if c < '0' || c > '9' {
			return Contract{}, ErrInvalidSymbol
		}
		strikeMillis = strikeMillis*10 + int(c-'0')
	}

	return Contract{
		Underlying: underlying,
		Expiry:     time.Date(2000+yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC),
		Right:      right,
		Strike:     float64(strikeMillis) / 1000,
	}, nil
}

// Encode builds the OCC symbol for a contract, without the "O:" prefix.
func Encode(underlying string, expiry time.Time, right byte, strike float64) string {
	return fmt.Sprintf("%s%02d%02d%02d%c%08d",
		underlying,
		expiry.Year()%100, int(expiry.Month()), expiry.Day(),
		right,
		int(strike*1000+0.5))
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func digits2(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}
