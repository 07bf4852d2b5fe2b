package contract

import (
	"errors"
	"fmt"
	"strings"
)

// ContractError is a configuration-time failure around contracts.
//
// It is the only error class the pipeline returns to callers; producer
// misbehaviour is always absorbed into the result instead.
type ContractError struct {
	// Code identifies the error category.
	Code ContractErrorCode

	// ContractID is the contract involved.
	ContractID string

	// Message is a human-readable description.
	Message string

	// Details lists individual problems for INVALID_CONTRACT.
	Details []string
}

// ContractErrorCode categorizes contract errors.
type ContractErrorCode string

const (
	// ErrCodeUnknownContract indicates a lookup of an unregistered id.
	ErrCodeUnknownContract ContractErrorCode = "UNKNOWN_CONTRACT"

	// ErrCodeDuplicateContract indicates a second registration of an id.
	ErrCodeDuplicateContract ContractErrorCode = "DUPLICATE_CONTRACT"

	// ErrCodeInvalidContract indicates a contract failed static checks.
	ErrCodeInvalidContract ContractErrorCode = "INVALID_CONTRACT"

	// ErrCodeRegistrySealed indicates registration after the registry was sealed.
	ErrCodeRegistrySealed ContractErrorCode = "REGISTRY_SEALED"
)

// Error implements the error interface.
func (e *ContractError) Error() string {
	msg := fmt.Sprintf("%s: %s (contract=%s)", e.Code, e.Message, e.ContractID)
	if len(e.Details) > 0 {
		msg += ": " + strings.Join(e.Details, "; ")
	}
	return msg
}

// NewUnknownError creates a ContractError for a missing contract.
func NewUnknownError(id string) *ContractError {
	return &ContractError{
		Code:       ErrCodeUnknownContract,
		ContractID: id,
		Message:    "contract is not registered",
	}
}

// NewDuplicateError creates a ContractError for a repeated registration.
func NewDuplicateError(id string) *ContractError {
	return &ContractError{
		Code:       ErrCodeDuplicateContract,
		ContractID: id,
		Message:    "contract is already registered",
	}
}

// NewInvalidError creates a ContractError carrying static check failures.
func NewInvalidError(id string, details []string) *ContractError {
	return &ContractError{
		Code:       ErrCodeInvalidContract,
		ContractID: id,
		Message:    "contract failed static checks",
		Details:    details,
	}
}

// NewSealedError creates a ContractError for registration after Seal.
func NewSealedError(id string) *ContractError {
	return &ContractError{
		Code:       ErrCodeRegistrySealed,
		ContractID: id,
		Message:    "registry is sealed",
	}
}

// IsUnknownContract returns true if err is an UNKNOWN_CONTRACT error.
// Uses errors.As to handle wrapped errors.
func IsUnknownContract(err error) bool {
	return hasCode(err, ErrCodeUnknownContract)
}

// IsDuplicateContract returns true if err is a DUPLICATE_CONTRACT error.
func IsDuplicateContract(err error) bool {
	return hasCode(err, ErrCodeDuplicateContract)
}

// IsInvalidContract returns true if err is an INVALID_CONTRACT error.
func IsInvalidContract(err error) bool {
	return hasCode(err, ErrCodeInvalidContract)
}

func hasCode(err error, code ContractErrorCode) bool {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
