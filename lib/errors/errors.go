// Package errors holds the error types returned by bqdestination packages.
//
// Every error wraps its cause (when there is one), so callers can use the
// standard errors.As and errors.Is on them.
package errors

import (
	"fmt"

	bigquery "google.golang.org/api/bigquery/v2"
)

// MalformedCredentialError is returned when a service account JSON key
// can't be decoded, or a required field is missing from it.
type MalformedCredentialError struct {
	// Field is the missing field's JSON name. Empty when the key is not valid JSON.
	Field string
	Err   error
}

func NewMalformedCredentialError(field string, err error) *MalformedCredentialError {
	return &MalformedCredentialError{Field: field, Err: err}
}

func (err *MalformedCredentialError) Error() string {
	if err.Field != "" {
		return fmt.Sprintf("malformed service account credential: missing %s", err.Field)
	}
	return fmt.Sprintf("malformed service account credential: %v", err.Err)
}

func (err *MalformedCredentialError) Unwrap() error { return err.Err }

// InvalidKeyError is returned when a service account private key is not a
// PEM encoded RSA key.
type InvalidKeyError struct {
	Err error
}

func NewInvalidKeyError(err error) *InvalidKeyError { return &InvalidKeyError{Err: err} }

func (err *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid private key: %v", err.Err)
}

func (err *InvalidKeyError) Unwrap() error { return err.Err }

// SigningError is returned when signing a JWT assertion fails.
type SigningError struct {
	Err error
}

func NewSigningError(err error) *SigningError { return &SigningError{Err: err} }

func (err *SigningError) Error() string {
	return fmt.Sprintf("failed signing assertion: %v", err.Err)
}

func (err *SigningError) Unwrap() error { return err.Err }

// MissingSettingError is returned when a required setting is absent or empty.
type MissingSettingError struct {
	Name string
}

func NewMissingSettingError(name string) *MissingSettingError {
	return &MissingSettingError{Name: name}
}

func (err *MissingSettingError) Error() string {
	return fmt.Sprintf("missing %s setting", err.Name)
}

// SerializationError is returned when an event field can't be encoded as JSON.
type SerializationError struct {
	Field string
	Err   error
}

func NewSerializationError(field string, err error) *SerializationError {
	return &SerializationError{Field: field, Err: err}
}

func (err *SerializationError) Error() string {
	return fmt.Sprintf("failed serializing %s: %v", err.Field, err.Err)
}

func (err *SerializationError) Unwrap() error { return err.Err }

// UnknownVariantError is returned for an enumeration value outside of its
// known set, e.g. an event type this package doesn't know yet.
type UnknownVariantError struct {
	// Kind is the enumeration's name, e.g. "event_type".
	Kind  string
	Value string
}

func NewUnknownVariantError(kind, value string) *UnknownVariantError {
	return &UnknownVariantError{Kind: kind, Value: value}
}

func (err *UnknownVariantError) Error() string {
	return fmt.Sprintf("unknown %s %q", err.Kind, err.Value)
}

// TokenResponseError is returned when a token exchange response doesn't
// hold the expected token property.
type TokenResponseError struct {
	Property string
	Err      error
}

func NewTokenResponseError(property string, err error) *TokenResponseError {
	return &TokenResponseError{Property: property, Err: err}
}

func (err *TokenResponseError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("invalid token response: %v", err.Err)
	}
	return fmt.Sprintf("token response is missing %q", err.Property)
}

func (err *TokenResponseError) Unwrap() error { return err.Err }

// RowError is a single row insert error, returned from an insertAll response.
type RowError struct {
	Reason   string
	Message  string
	Location string
	Index    int64
	URL      string
}

func NewRowError(rowError bigquery.ErrorProto, index int64, url string) *RowError {
	return &RowError{
		Reason:   rowError.Reason,
		Message:  rowError.Message,
		Location: rowError.Location,
		Index:    index,
		URL:      url,
	}
}

func (err *RowError) Error() string {
	return fmt.Sprintf("%s: row %d rejected: %s: %s (location: %s)",
		err.URL, err.Index, err.Reason, err.Message, err.Location)
}

// TooManyFailedInsertRetriesError is returned when an insert failed too many
// times, and was dropped.
type TooManyFailedInsertRetriesError struct {
	NumFailedRetries int
	URL              string
}

func NewTooManyFailedInsertRetriesError(numFailedRetries int, url string) *TooManyFailedInsertRetriesError {
	return &TooManyFailedInsertRetriesError{NumFailedRetries: numFailedRetries, URL: url}
}

func (err *TooManyFailedInsertRetriesError) Error() string {
	return fmt.Sprintf("%s: insert failed %d times, dropping request",
		err.URL, err.NumFailedRetries)
}
