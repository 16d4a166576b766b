// Copyright 2024 the vpn-operator contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vpnutil

import (
	"errors"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// ConflictError wraps a name-uniqueness CAS loss. It is an expected outcome
// of the allocation protocol, not a failure: callers treat it as "try the
// next slot".
type ConflictError struct{ Err error }

func (e *ConflictError) Error() string { return e.Err.Error() }
func (e *ConflictError) Unwrap() error { return e.Err }

// NotFoundError wraps a 404 from the object store. Expected at read sites;
// callers interpret it as "object gone".
type NotFoundError struct{ Err error }

func (e *NotFoundError) Error() string { return e.Err.Error() }
func (e *NotFoundError) Unwrap() error { return e.Err }

// UserInputError signals missing required metadata, a malformed
// cross-reference, or an unparseable spec value. Reconcilers handle it like
// any other error: it is logged and retried after ErrorRequeueInterval, and
// it is not written to the resource's status.
type UserInputError struct{ Msg string }

func (e *UserInputError) Error() string { return e.Msg }

// TransientError wraps any other object-store error. Always retried with
// ErrorRequeueInterval backoff.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Classify wraps a raw API error returned by the Kubernetes client into the
// tagged taxonomy above, so reconcilers can branch on category instead of
// raw HTTP status codes.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case apierrors.IsConflict(err), apierrors.IsAlreadyExists(err):
		return &ConflictError{Err: err}
	case apierrors.IsNotFound(err):
		return &NotFoundError{Err: err}
	default:
		return &TransientError{Err: err}
	}
}

// IsConflict reports whether err (or a wrapped cause) is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsNotFound reports whether err (or a wrapped cause) is a NotFoundError.
func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

// IsUserInput reports whether err (or a wrapped cause) is a UserInputError.
func IsUserInput(err error) bool {
	var u *UserInputError
	return errors.As(err, &u)
}

// NewUserInputError builds a UserInputError with the given message.
func NewUserInputError(msg string) error {
	return &UserInputError{Msg: msg}
}

// IsNotFoundRaw reports whether err is a raw (unclassified) 404 from the
// client, for call sites that need to check before routing through Classify.
func IsNotFoundRaw(err error) bool {
	return apierrors.IsNotFound(err)
}

// IsConflictRaw reports whether err is a raw (unclassified) 409 from the
// client, for call sites that need to check before routing through Classify.
func IsConflictRaw(err error) bool {
	return apierrors.IsConflict(err)
}
