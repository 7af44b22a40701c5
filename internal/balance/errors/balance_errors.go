package balanceerrors

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
	ErrInvalidEmployeeID = apperror.New(
		apperror.CodeInvalidInput,
		"invalid employee id",
		http.StatusBadRequest,
	)
	ErrInvalidActorID = apperror.New(
		apperror.CodeInvalidInput,
		"invalid actor id",
		http.StatusBadRequest,
	)
	ErrInvalidDays = apperror.New(
		apperror.CodeInvalidInput,
		"days must be a positive whole number",
		http.StatusBadRequest,
	)
	ErrInvalidDelta = apperror.New(
		apperror.CodeInvalidInput,
		"delta must be a non-zero whole number",
		http.StatusBadRequest,
	)
	ErrAdjustmentReasonRequired = apperror.New(
		apperror.CodeInvalidInput,
		"reason is required for a manual balance adjustment",
		http.StatusBadRequest,
	)
	ErrBalanceNotFound = apperror.New(
		apperror.CodeNotFound,
		"leave balance not found",
		http.StatusNotFound,
	)
	ErrNoActivePolicy = apperror.New(
		apperror.CodeNotFound,
		"no active leave policy for this leave type",
		http.StatusNotFound,
	)
	ErrInsufficientBalance = apperror.New(
		apperror.CodeInsufficientBalance,
		"requested days exceed available leave balance",
		http.StatusUnprocessableEntity,
	)
	ErrNegativeAdjustment = apperror.New(
		apperror.CodeInsufficientBalance,
		"adjustment would make the available balance negative",
		http.StatusUnprocessableEntity,
	)
	ErrConcurrentModification = apperror.New(
		apperror.CodeConcurrentModification,
		"leave balance was modified concurrently, please retry",
		http.StatusConflict,
	)
)
