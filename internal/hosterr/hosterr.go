// Package hosterr converts the failure shapes of both hosts into one error
// type. Classification is heuristic: it sniffs native message text through a
// single pattern table, so unmatched messages stay untagged.
package hosterr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cryguy/dualstd/internal/core"
)

// Kind is the well-known name attached to a normalized error. The zero Kind
// is a generic error.
type Kind string

const (
	KindGeneric  Kind = ""
	KindAbort    Kind = "AbortError"
	KindTimeout  Kind = "TimeoutError"
	KindNotFound Kind = "NotFoundError"
)

// Error is the single error representation every backend failure is
// converted into.
type Error struct {
	Kind    Kind
	Message string
	Code    int // native error code, 0 when the host gave none

	exists bool
	cause  error
}

func (e *Error) Error() string {
	if e.Kind == KindGeneric {
		return e.Message
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches the kind sentinels, so errors.Is(err, ErrAbort) works no matter
// which backend produced err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Message != "" || t.Code != 0 {
		return false
	}
	return t.Kind != KindGeneric && t.Kind == e.Kind
}

// Sentinels for errors.Is. They carry only a kind.
var (
	ErrAbort    = &Error{Kind: KindAbort}
	ErrTimeout  = &Error{Kind: KindTimeout}
	ErrNotFound = &Error{Kind: KindNotFound}
)

const unknownMessage = "unknown error"

// New builds an error of the given kind. Used by adapters that detect a
// condition themselves (an abort flag, a missing key).
func New(kind Kind, msg string) *Error {
	if msg == "" {
		msg = unknownMessage
	}
	return &Error{Kind: kind, Message: msg}
}

// FromCallbackResult normalizes the failure value of a MiniGame native.
func FromCallbackResult(res core.GeneralCallbackResult) *Error {
	return build(core.RuntimeMiniGame, res.ErrMsg, res.ErrCode, nil)
}

// domNames maps DOMException names that already carry a kind.
var domNames = map[string]Kind{
	"AbortError":    KindAbort,
	"TimeoutError":  KindTimeout,
	"NotFoundError": KindNotFound,
}

// DOMException is the exception shape thrown by Web natives.
type DOMException struct {
	Name    string
	Message string
}

func (d *DOMException) Error() string {
	if d.Name == "" {
		return d.Message
	}
	return d.Name + ": " + d.Message
}

// FromDOMException normalizes a Web exception. A known name wins over
// message sniffing.
func FromDOMException(name, message string) *Error {
	e := build(core.RuntimeWeb, message, 0, nil)
	if k, ok := domNames[name]; ok {
		e.Kind = k
	}
	if name == "NoModificationAllowedError" || name == "InvalidModificationError" {
		e.exists = e.exists || strings.Contains(strings.ToLower(message), "exist")
	}
	return e
}

// From normalizes anything a backend can fail with: *Error, *DOMException,
// core.GeneralCallbackResult, error values, strings or arbitrary values.
func From(rt core.Runtime, v any) *Error {
	switch x := v.(type) {
	case nil:
		return New(KindGeneric, "")
	case *Error:
		return x
	case *DOMException:
		e := FromDOMException(x.Name, x.Message)
		e.cause = x
		return e
	case core.GeneralCallbackResult:
		return FromCallbackResult(x)
	case *core.GeneralCallbackResult:
		return FromCallbackResult(*x)
	case error:
		var he *Error
		if errors.As(x, &he) {
			return he
		}
		var de *DOMException
		if errors.As(x, &de) {
			e := FromDOMException(de.Name, de.Message)
			e.cause = x
			return e
		}
		return build(rt, x.Error(), 0, x)
	case string:
		return build(rt, x, 0, nil)
	default:
		return build(rt, fmt.Sprint(x), 0, nil)
	}
}

func build(rt core.Runtime, msg string, code int, cause error) *Error {
	if msg == "" {
		msg = unknownMessage
	}
	kind, exists := classify(rt, msg, code)
	return &Error{Kind: kind, Message: msg, Code: code, exists: exists, cause: cause}
}

// IsAlreadyExists reports whether err is the "already exists" condition that
// ensure-style callers treat as success.
func IsAlreadyExists(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.exists
}

// IgnoreAlreadyExists returns nil for the already-exists condition and err
// otherwise.
func IgnoreAlreadyExists(err error) error {
	if IsAlreadyExists(err) {
		return nil
	}
	return err
}

// KindOf returns the kind of err, or KindGeneric when err is not a normalized
// error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindGeneric
}
