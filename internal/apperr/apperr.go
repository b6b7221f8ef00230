package apperr

import (
	"errors"
	"fmt"
)

// Kind partitions failures by who has to act on them: the caller
// (authentication, configuration, validation), the upstream model
// (provider), or the storage layer (artifact store, persistence).
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindConfiguration  Kind = "configuration"
	KindProvider       Kind = "provider"
	KindValidation     Kind = "validation"
	KindArtifactStore  Kind = "artifact_store"
	KindPersistence    Kind = "persistence"
)

// Error wraps a cause with a Kind and a human-readable message. The message
// is what ends up in Variant.ErrorMessage and in terminal error events.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Authentication(message string) *Error { return New(KindAuthentication, message) }
func Configuration(message string) *Error  { return New(KindConfiguration, message) }
func Validation(message string) *Error     { return New(KindValidation, message) }

func Provider(message string, err error) *Error {
	return Wrap(KindProvider, message, err)
}

func ArtifactStore(message string, err error) *Error {
	return Wrap(KindArtifactStore, message, err)
}

func Persistence(message string, err error) *Error {
	return Wrap(KindPersistence, message, err)
}

// KindOf returns the Kind of err, or "" when err carries no taxonomy.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool { return KindOf(err) == kind }

func IsAuthentication(err error) bool { return Is(err, KindAuthentication) }
func IsConfiguration(err error) bool  { return Is(err, KindConfiguration) }
func IsProvider(err error) bool       { return Is(err, KindProvider) }
func IsValidation(err error) bool     { return Is(err, KindValidation) }
func IsArtifactStore(err error) bool  { return Is(err, KindArtifactStore) }
func IsPersistence(err error) bool    { return Is(err, KindPersistence) }
