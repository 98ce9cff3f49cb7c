// Package errors defines the error taxonomy shared by the classifier, selector,
// packer, builders and the load orchestration.
//
// Every condition is a CTokenError carrying a stable code, a human-readable
// message with the identifiers involved (mint, owner, amounts), and an optional
// details map for callers that want structured access.
package errors

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	ErrCodeAccountNotFound          = "ACCOUNT_NOT_FOUND"
	ErrCodeInvalidAccountData       = "INVALID_ACCOUNT_DATA"
	ErrCodeInsufficientBalance      = "INSUFFICIENT_BALANCE"
	ErrCodeCrossGenerationSelection = "CROSS_GENERATION_SELECTION"
	ErrCodeNoInitializedPool        = "NO_INITIALIZED_POOL"
	ErrCodeUnpackedReference        = "UNPACKED_REFERENCE"
	ErrCodeNoInputAccounts          = "NO_INPUT_ACCOUNTS"
	ErrCodeZeroAmount               = "ZERO_AMOUNT"
	ErrCodeInvalidDestination       = "INVALID_DESTINATION"
	ErrCodeUnsupportedProgram       = "UNSUPPORTED_PROGRAM"
	ErrCodeInvalidResponse          = "INVALID_RESPONSE"
	ErrCodePaginationLimit          = "PAGINATION_LIMIT"
	ErrCodeNothingToLoad            = "NOTHING_TO_LOAD"
	ErrCodeTooManyInputs            = "TOO_MANY_INPUTS"
	ErrCodeFrozenAccount            = "FROZEN_ACCOUNT"
	ErrCodeInvalidAuthority         = "INVALID_AUTHORITY"
)

// CTokenError represents an error raised by the SDK.
type CTokenError struct {
	// Code is a unique error code for this error type.
	Code string

	// Message is a human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Details contains additional error context.
	Details map[string]any
}

// Error implements the error interface.
func (e *CTokenError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *CTokenError) Unwrap() error {
	return e.Cause
}

// Is reports whether the error carries the same code as target.
func (e *CTokenError) Is(target error) bool {
	t, ok := target.(*CTokenError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause adds a cause to the error.
func (e *CTokenError) WithCause(cause error) *CTokenError {
	e.Cause = cause
	return e
}

// WithDetails adds details to the error.
func (e *CTokenError) WithDetails(details map[string]any) *CTokenError {
	e.Details = details
	return e
}

// Detail returns a single detail value.
func (e *CTokenError) Detail(key string) (any, bool) {
	if e.Details == nil {
		return nil, false
	}
	v, ok := e.Details[key]
	return v, ok
}

// NewError creates a new CTokenError.
func NewError(code, message string) *CTokenError {
	return &CTokenError{
		Code:    code,
		Message: message,
	}
}

// Sentinels for use with errors.Is. Matching is by code, so any error built by
// the constructors below matches the sentinel of the same code.
var (
	ErrAccountNotFound          = NewError(ErrCodeAccountNotFound, "account not found")
	ErrInvalidAccountData       = NewError(ErrCodeInvalidAccountData, "invalid account data")
	ErrInsufficientBalance      = NewError(ErrCodeInsufficientBalance, "insufficient balance")
	ErrCrossGenerationSelection = NewError(ErrCodeCrossGenerationSelection, "cannot select across tree generations")
	ErrNoInitializedPool        = NewError(ErrCodeNoInitializedPool, "no initialized token pool")
	ErrUnpackedReference        = NewError(ErrCodeUnpackedReference, "reference not packed")
	ErrNoInputAccounts          = NewError(ErrCodeNoInputAccounts, "no input accounts")
	ErrZeroAmount               = NewError(ErrCodeZeroAmount, "amount must be greater than zero")
	ErrInvalidDestination       = NewError(ErrCodeInvalidDestination, "invalid destination")
	ErrUnsupportedProgram       = NewError(ErrCodeUnsupportedProgram, "unsupported program")
	ErrInvalidResponse          = NewError(ErrCodeInvalidResponse, "invalid response")
	ErrPaginationLimit          = NewError(ErrCodePaginationLimit, "pagination limit exceeded")
	ErrNothingToLoad            = NewError(ErrCodeNothingToLoad, "nothing to load")
	ErrTooManyInputs            = NewError(ErrCodeTooManyInputs, "too many input accounts")
	ErrFrozenAccount            = NewError(ErrCodeFrozenAccount, "account is frozen")
	ErrInvalidAuthority         = NewError(ErrCodeInvalidAuthority, "invalid authority")
)

// AccountNotFound reports that none of the checked representations hold the account.
func AccountNotFound(owner, mint fmt.Stringer) *CTokenError {
	return NewError(ErrCodeAccountNotFound,
		fmt.Sprintf("token account not found for owner %s and mint %s", owner, mint)).
		WithDetails(map[string]any{"owner": owner.String(), "mint": mint.String()})
}

// AccountNotFoundAtAddress reports that nothing was found at the given address.
func AccountNotFoundAtAddress(address fmt.Stringer) *CTokenError {
	return NewError(ErrCodeAccountNotFound, fmt.Sprintf("token account %s not found", address)).
		WithDetails(map[string]any{"address": address.String()})
}

// AccountNotFoundUnderProgram is the explicit-program flavor of AccountNotFound.
func AccountNotFoundUnderProgram(address, program fmt.Stringer) *CTokenError {
	return NewError(ErrCodeAccountNotFound,
		fmt.Sprintf("token account %s not found under program %s", address, program)).
		WithDetails(map[string]any{"address": address.String(), "program": program.String()})
}

// InvalidAccountData reports a byte layout that does not match the expected shape.
func InvalidAccountData(what string, got, want int) *CTokenError {
	return NewError(ErrCodeInvalidAccountData,
		fmt.Sprintf("invalid %s data: got %d bytes, need at least %d", what, got, want)).
		WithDetails(map[string]any{"got": got, "want": want})
}

// InsufficientBalance reports a requested amount above what is available.
func InsufficientBalance(requested, available uint64) *CTokenError {
	return NewError(ErrCodeInsufficientBalance,
		fmt.Sprintf("Insufficient balance. Required: %d, available: %d.", requested, available)).
		WithDetails(map[string]any{"requested": requested, "available": available})
}

// CrossGenerationSelection reports inputs drawn from more than one tree generation.
func CrossGenerationSelection(generations ...string) *CTokenError {
	return NewError(ErrCodeCrossGenerationSelection,
		fmt.Sprintf("cannot select inputs across tree generations %v; merge each generation separately", generations)).
		WithDetails(map[string]any{"generations": generations})
}

// NoInitializedPool reports a mint without any usable token pool.
func NoInitializedPool(mint fmt.Stringer) *CTokenError {
	return NewError(ErrCodeNoInitializedPool,
		fmt.Sprintf("no initialized token pool for mint %s; create a token pool first", mint)).
		WithDetails(map[string]any{"mint": mint.String()})
}

// UnpackedReference reports a key resolved before it was packed.
func UnpackedReference(key fmt.Stringer) *CTokenError {
	return NewError(ErrCodeUnpackedReference, fmt.Sprintf("account %s was not packed", key)).
		WithDetails(map[string]any{"key": key.String()})
}

// NoInputAccounts reports an empty input list for an operation that needs one.
func NoInputAccounts(operation string) *CTokenError {
	return NewError(ErrCodeNoInputAccounts, fmt.Sprintf("%s requires at least one input account", operation))
}

// ZeroAmount reports a zero amount where a positive one is required.
func ZeroAmount(operation string) *CTokenError {
	return NewError(ErrCodeZeroAmount, fmt.Sprintf("%s amount must be greater than zero", operation))
}

// InvalidDestination reports a destination or source that does not match the derived address.
func InvalidDestination(got, want fmt.Stringer) *CTokenError {
	return NewError(ErrCodeInvalidDestination,
		fmt.Sprintf("account %s does not match expected address %s", got, want)).
		WithDetails(map[string]any{"got": got.String(), "want": want.String()})
}

// UnsupportedProgram reports a token program the SDK does not handle.
func UnsupportedProgram(program fmt.Stringer) *CTokenError {
	return NewError(ErrCodeUnsupportedProgram, fmt.Sprintf("unsupported token program %s", program)).
		WithDetails(map[string]any{"program": program.String()})
}

// InvalidResponse reports a malformed response from a remote collaborator.
func InvalidResponse(message string) *CTokenError {
	return NewError(ErrCodeInvalidResponse, message)
}

// PaginationLimit reports a paginated listing that did not terminate.
func PaginationLimit(maxPages int) *CTokenError {
	return NewError(ErrCodePaginationLimit, fmt.Sprintf("Pagination exceeded maximum of %d pages", maxPages)).
		WithDetails(map[string]any{"max_pages": maxPages})
}

// NothingToLoad reports a load request with nothing to move.
func NothingToLoad(owner, mint fmt.Stringer) *CTokenError {
	return NewError(ErrCodeNothingToLoad, fmt.Sprintf("nothing to load for owner %s and mint %s", owner, mint))
}

// TooManyInputs reports a full-balance selection that exceeds the cardinality bound.
func TooManyInputs(count, max int) *CTokenError {
	return NewError(ErrCodeTooManyInputs,
		fmt.Sprintf("%d input accounts exceed the maximum of %d; merge accounts first", count, max)).
		WithDetails(map[string]any{"count": count, "max": max})
}

// FrozenAccount reports an operation on a frozen account.
func FrozenAccount(address fmt.Stringer) *CTokenError {
	return NewError(ErrCodeFrozenAccount, fmt.Sprintf("token account %s is frozen", address))
}

// InvalidAuthority reports a signer that neither owns nor is delegated any of
// the owner's balance.
func InvalidAuthority(authority, owner fmt.Stringer) *CTokenError {
	return NewError(ErrCodeInvalidAuthority,
		fmt.Sprintf("%s is neither owner nor delegate of %s's tokens", authority, owner)).
		WithDetails(map[string]any{"authority": authority.String(), "owner": owner.String()})
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Unjoin splits an error built by Join into its parts. A plain error yields
// itself; nil yields nil.
func Unjoin(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
