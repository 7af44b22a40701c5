package policyerrors

import (
	"net/http"

	"go-leave/internal/shared/apperror"
)

var (
	ErrInvalidCompanyID = apperror.New(
		apperror.CodeInvalidInput,
		"invalid company id",
		http.StatusBadRequest,
	)
	ErrInvalidActorID = apperror.New(
		apperror.CodeInvalidInput,
		"invalid actor id",
		http.StatusBadRequest,
	)
	ErrInvalidPolicyID = apperror.New(
		apperror.CodeInvalidInput,
		"invalid policy id",
		http.StatusBadRequest,
	)
	ErrCarryForwardTerms = apperror.New(
		apperror.CodeInvalidInput,
		"max_carry_forward requires carry_forward to be enabled",
		http.StatusBadRequest,
	)
	ErrPolicyNotFound = apperror.New(
		apperror.CodeNotFound,
		"leave policy not found or no longer active",
		http.StatusNotFound,
	)
	ErrDuplicateActivePolicy = apperror.New(
		apperror.CodeConflict,
		"an active policy already exists for this leave type",
		http.StatusConflict,
	)
)
