package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidShop       = errors.New("invalid_shop")
	ErrInvalidID         = errors.New("invalid_discount_id")
	ErrInvalidStatus     = errors.New("invalid_live_status")
	ErrExclusionMismatch = errors.New("exclusion_reason_mismatch")
	ErrNotFound          = errors.New("discount_not_found")
	ErrNotToggleable     = errors.New("discount_not_toggleable")
	ErrQuotaExceeded     = errors.New("live_quota_exceeded")
	ErrReprocessRunning  = errors.New("reprocess_already_running")
)

// ErrorKind classifies pipeline failures so batch callers can branch without
// string matching.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindInvalidInput
	KindNotFound
	KindUpstream
	KindStorage
	KindTier
	KindConflict
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindStorage:
		return "storage"
	case KindTier:
		return "tier"
	case KindConflict:
		return "conflict"
	}
	return "unknown"
}

// OpError records which pipeline operation failed and why.
type OpError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func NewOpError(op string, kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Kind: kind, Err: err}
}

// KindOf returns the kind of the outermost OpError in the chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindUnknown
}
