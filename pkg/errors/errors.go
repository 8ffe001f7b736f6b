/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errors defines the domain error kinds shared across the control
// plane. External surfaces map these to transport codes; internally callers
// branch on the predicates, even when the error has been wrapped.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func NewNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

type AlreadyExistsError struct {
	Kind string
	ID   string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.ID)
}

func NewAlreadyExists(kind, id string) error {
	return &AlreadyExistsError{Kind: kind, ID: id}
}

func IsAlreadyExists(err error) bool {
	var ae *AlreadyExistsError
	return errors.As(err, &ae)
}

type InvalidStateError struct {
	Kind    string
	ID      string
	State   string
	Message string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %q in state %q: %s", e.Kind, e.ID, e.State, e.Message)
}

func NewInvalidState(kind, id, state, message string) error {
	return &InvalidStateError{Kind: kind, ID: id, State: state, Message: message}
}

func IsInvalidState(err error) bool {
	var is *InvalidStateError
	return errors.As(err, &is)
}

// ValidationError carries field-level messages. It is non-fatal and surfaced
// to the caller as a list.
type ValidationError struct {
	Failures []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Failures, "; "))
}

func NewValidation(failures ...string) error {
	return &ValidationError{Failures: failures}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ValidationFailures unwraps the field messages, or nil for other errors.
func ValidationFailures(err error) []string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Failures
	}
	return nil
}

type ResourceInsufficientError struct {
	Resource string
	Have     float64
	Need     float64
}

func (e *ResourceInsufficientError) Error() string {
	return fmt.Sprintf("insufficient %s: have %.1f, need %.1f", e.Resource, e.Have, e.Need)
}

func NewResourceInsufficient(resource string, have, need float64) error {
	return &ResourceInsufficientError{Resource: resource, Have: have, Need: need}
}

func IsResourceInsufficient(err error) bool {
	var ri *ResourceInsufficientError
	return errors.As(err, &ri)
}

type CircuitOpenError struct {
	Breaker string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit %q open", e.Breaker)
}

func NewCircuitOpen(breaker string) error {
	return &CircuitOpenError{Breaker: breaker}
}

func IsCircuitOpen(err error) bool {
	var co *CircuitOpenError
	return errors.As(err, &co)
}

type TimeoutError struct {
	Operation string
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out, %v", e.Operation, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func NewTimeout(operation string, err error) error {
	return &TimeoutError{Operation: operation, Err: err}
}

func IsTimeout(err error) bool {
	var to *TimeoutError
	return errors.As(err, &to)
}

// TransientError marks failures that degrade behavior rather than abort it,
// e.g. a store write that leaves the in-memory copy authoritative.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

func NewTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func IsTransient(err error) bool {
	var tr *TransientError
	return errors.As(err, &tr)
}
