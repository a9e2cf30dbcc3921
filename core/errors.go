package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-connections/datastore"
	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorCodeDuplicate    = "CONNECTION_DUPLICATE"
	ErrorCodeNotFound     = "CONNECTION_NOT_FOUND"
	ErrorCodeNotConnected = "CONNECTION_NOT_CONNECTED"
	ErrorCodeBadInput     = "CONNECTION_BAD_INPUT"
	ErrorCodeConflict     = "CONNECTION_CONFLICT"
	ErrorCodeInternal     = "CONNECTION_INTERNAL_ERROR"

	ErrorCodeProfileNotFound = "CONNECTION_PROFILE_NOT_FOUND"
)

var (
	ErrDuplicateConnection = errors.New("core: connection already exists")
	ErrNoSuchConnection    = errors.New("core: no such connection")
	ErrNotConnected        = errors.New("core: not connected")
	ErrInvalidArgument     = errors.New("core: invalid argument")
)

type DuplicateConnectionError struct {
	Key ConnectionKey
}

func (e *DuplicateConnectionError) Error() string {
	if e == nil {
		return ErrDuplicateConnection.Error()
	}
	return fmt.Sprintf("%s: %s", ErrDuplicateConnection.Error(), e.Key)
}

func (e *DuplicateConnectionError) Unwrap() error {
	return ErrDuplicateConnection
}

func (e *DuplicateConnectionError) ToServiceError() *goerrors.Error {
	key := ConnectionKey{}
	if e != nil {
		key = e.Key
	}
	return goerrors.New(e.Error(), goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(ErrorCodeDuplicate).
		WithMetadata(keyMetadata(key))
}

type NoSuchConnectionError struct {
	Key ConnectionKey
}

func (e *NoSuchConnectionError) Error() string {
	if e == nil {
		return ErrNoSuchConnection.Error()
	}
	return fmt.Sprintf("%s: %s", ErrNoSuchConnection.Error(), e.Key)
}

func (e *NoSuchConnectionError) Unwrap() error {
	return ErrNoSuchConnection
}

func (e *NoSuchConnectionError) ToServiceError() *goerrors.Error {
	key := ConnectionKey{}
	if e != nil {
		key = e.Key
	}
	return goerrors.New(e.Error(), goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorCodeNotFound).
		WithMetadata(keyMetadata(key))
}

type NotConnectedError struct {
	ProviderID string
}

func (e *NotConnectedError) Error() string {
	if e == nil || e.ProviderID == "" {
		return ErrNotConnected.Error()
	}
	return fmt.Sprintf("%s: %s", ErrNotConnected.Error(), e.ProviderID)
}

func (e *NotConnectedError) Unwrap() error {
	return ErrNotConnected
}

func (e *NotConnectedError) ToServiceError() *goerrors.Error {
	providerID := ""
	if e != nil {
		providerID = e.ProviderID
	}
	return goerrors.New(e.Error(), goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorCodeNotConnected).
		WithMetadata(map[string]any{"provider_id": providerID})
}

type InvalidArgumentError struct {
	Field   string
	Message string
}

func (e *InvalidArgumentError) Error() string {
	if e == nil || e.Message == "" {
		return ErrInvalidArgument.Error()
	}
	return ErrInvalidArgument.Error() + ": " + e.Message
}

func (e *InvalidArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

func (e *InvalidArgumentError) ToServiceError() *goerrors.Error {
	field, message := "", ErrInvalidArgument.Error()
	if e != nil {
		field, message = e.Field, e.Error()
	}
	return goerrors.NewValidation(message, goerrors.FieldError{Field: field, Message: message}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorCodeBadInput)
}

// AfterInterceptorError reports post-commit listener failures. The mutation
// it describes has been committed.
type AfterInterceptorError struct {
	Operation string
	Err       error
}

func (e *AfterInterceptorError) Error() string {
	if e == nil || e.Err == nil {
		return "core: after interceptor failed"
	}
	return fmt.Sprintf("core: after-%s interceptors failed: %v", e.Operation, e.Err)
}

func (e *AfterInterceptorError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func duplicateConnection(key ConnectionKey) error {
	return &DuplicateConnectionError{Key: key}
}

func noSuchConnection(key ConnectionKey) error {
	return &NoSuchConnectionError{Key: key}
}

func notConnected(providerID string) error {
	return &NotConnectedError{ProviderID: providerID}
}

func invalidArgument(field string, message string) error {
	return &InvalidArgumentError{Field: field, Message: message}
}

type serviceErrorConverter interface {
	ToServiceError() *goerrors.Error
}

// MapError converts any error into a go-errors envelope with an HTTP status
// and a text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var converter serviceErrorConverter
	if errors.As(err, &converter) {
		return ensureEnvelope(converter.ToServiceError())
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureEnvelope(richErr)
	}
	if isConcurrentModification(err) {
		return ensureEnvelope(goerrors.Wrap(err, goerrors.CategoryConflict, err.Error()).
			WithTextCode(ErrorCodeConflict))
	}
	return ensureEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

func ensureEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func httpStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorCodeBadInput
	case goerrors.CategoryNotFound:
		return ErrorCodeNotFound
	case goerrors.CategoryConflict:
		return ErrorCodeConflict
	default:
		return ErrorCodeInternal
	}
}

func keyMetadata(key ConnectionKey) map[string]any {
	return map[string]any{
		"provider_id":      key.ProviderID,
		"provider_user_id": key.ProviderUserID,
	}
}

func isConcurrentModification(err error) bool {
	return errors.Is(err, datastore.ErrConcurrentModification)
}
