package market

import (
	"errors"
	"fmt"
)

// Kind classifies a protocol error. Kinds are stable identifiers shared by
// the HTTP API and the CLI.
type Kind string

const (
	KindInvalidInput         Kind = "InvalidInput"
	KindInvalidExpiration    Kind = "InvalidExpiration"
	KindNotFound             Kind = "NotFound"
	KindMarketNotActive      Kind = "MarketNotActive"
	KindMarketExpired        Kind = "MarketExpired"
	KindBetTooLow            Kind = "BetTooLow"
	KindAlreadyCommitted     Kind = "AlreadyCommitted"
	KindNoCommitmentFound    Kind = "NoCommitmentFound"
	KindAlreadyRevealed      Kind = "AlreadyRevealed"
	KindInvalidReveal        Kind = "InvalidReveal"
	KindRevealWindowClosed   Kind = "RevealWindowClosed"
	KindNotExpiredYet        Kind = "NotExpiredYet"
	KindAlreadyResolved      Kind = "AlreadyResolved"
	KindUnauthorized         Kind = "Unauthorized"
	KindCancellationDisabled Kind = "CancellationDisabled"
	KindMarketNotResolved    Kind = "MarketNotResolved"
	KindBetDidNotWin         Kind = "BetDidNotWin"
	KindAlreadyClaimed       Kind = "AlreadyClaimed"
	KindNoWinningShares      Kind = "NoWinningShares"
	KindNoBetFound           Kind = "NoBetFound"
	KindRefundNotAvailable   Kind = "RefundNotAvailable"
	KindInsufficientBalance  Kind = "InsufficientBalance"
	KindTransferFailed       Kind = "TransferFailed"
	KindPaused               Kind = "Paused"
	KindInternal             Kind = "Internal"
)

// Error is a protocol error carrying a Kind. Two errors match under
// errors.Is when their kinds are equal.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the operation may succeed if repeated unchanged.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransferFailed
}

var (
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrInvalidExpiration    = &Error{Kind: KindInvalidExpiration}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrMarketNotActive      = &Error{Kind: KindMarketNotActive}
	ErrMarketExpired        = &Error{Kind: KindMarketExpired}
	ErrBetTooLow            = &Error{Kind: KindBetTooLow}
	ErrAlreadyCommitted     = &Error{Kind: KindAlreadyCommitted}
	ErrNoCommitmentFound    = &Error{Kind: KindNoCommitmentFound}
	ErrAlreadyRevealed      = &Error{Kind: KindAlreadyRevealed}
	ErrInvalidReveal        = &Error{Kind: KindInvalidReveal}
	ErrRevealWindowClosed   = &Error{Kind: KindRevealWindowClosed}
	ErrNotExpiredYet        = &Error{Kind: KindNotExpiredYet}
	ErrAlreadyResolved      = &Error{Kind: KindAlreadyResolved}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized}
	ErrCancellationDisabled = &Error{Kind: KindCancellationDisabled}
	ErrMarketNotResolved    = &Error{Kind: KindMarketNotResolved}
	ErrBetDidNotWin         = &Error{Kind: KindBetDidNotWin}
	ErrAlreadyClaimed       = &Error{Kind: KindAlreadyClaimed}
	ErrNoWinningShares      = &Error{Kind: KindNoWinningShares}
	ErrNoBetFound           = &Error{Kind: KindNoBetFound}
	ErrRefundNotAvailable   = &Error{Kind: KindRefundNotAvailable}
	ErrInsufficientBalance  = &Error{Kind: KindInsufficientBalance}
	ErrTransferFailed       = &Error{Kind: KindTransferFailed}
	ErrPaused               = &Error{Kind: KindPaused}
)

// Errorf builds an *Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or KindInternal when err is not a
// protocol error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the human readable part of err without the kind prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	return err.Error()
}
