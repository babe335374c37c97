package validate

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
)

// DateLength is the exact length of an accepted MM/DD/YYYY string.
const DateLength = 10

// DateLayout is the time layout matching strings accepted by CheckDate.
const DateLayout = "01/02/2006"

const (
	msgDateFormat = "Invalid date format."
	msgDateLength = "A valid date must be no longer than 10 characters."
)

// DateError describes why CheckDate rejected its input.
type DateError struct {
	Input   string
	Index   int
	TooLong bool
}

func (e *DateError) Error() string {
	if e.TooLong {
		return fmt.Sprintf("date longer than %d characters", DateLength)
	}
	return fmt.Sprintf("invalid date format at index %d", e.Index)
}

func (e *DateError) Unwrap() error { return common.ErrBadDate }

// Reason renders the rejection for display: the message, then the input up
// to the offending index followed by '?'.
func (e *DateError) Reason() string {
	msg := msgDateFormat
	if e.TooLong {
		msg = msgDateLength
	}
	idx := e.Index
	if idx > len(e.Input) {
		idx = len(e.Input)
	}
	return msg + "\n" + e.Input[:idx] + "?\n"
}

// dateStates lists, per position, the characters the acceptor allows:
// month tens, month ones, slash, day tens, day ones, slash, then four year
// digits of which the first is 1 or 2. The last state is accepting.
var dateStates = [DateLength]func(c byte) bool{
	func(c byte) bool { return c == '0' || c == '1' },
	isDigit,
	isSlash,
	func(c byte) bool { return c >= '0' && c <= '3' },
	isDigit,
	isSlash,
	func(c byte) bool { return c == '1' || c == '2' },
	isDigit,
	isDigit,
	isDigit,
}

// CheckDate runs the MM/DD/YYYY acceptor over s. It returns nil on
// acceptance, otherwise a *DateError. Only the shape is checked, so
// "13/39/2099" passes.
func CheckDate(s string) error {
	state := 0
	for i := 0; i < len(s); i++ {
		if state == DateLength {
			return &DateError{Input: s, Index: DateLength, TooLong: true}
		}
		if !dateStates[state](s[i]) {
			return &DateError{Input: s, Index: i}
		}
		state++
	}
	if state != DateLength {
		return &DateError{Input: s, Index: len(s)}
	}
	return nil
}

// DateShape returns "" when s is accepted, otherwise the display reason.
func DateShape(s string) string {
	var derr *DateError
	if errors.As(CheckDate(s), &derr) {
		return derr.Reason()
	}
	return ""
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isSlash(c byte) bool { return c == '/' }
