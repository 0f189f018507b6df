package router

import (
	"errors"

	"github.com/Alia5/usbridge/apitypes"
)

// Factory helpers returning *apitypes.ApiError (single canonical error type).
func ErrBadRequest(detail string) *apitypes.ApiError {
	return &apitypes.ApiError{Status: 400, Title: "Bad Request", Detail: detail}
}
func ErrNotFound(detail string) *apitypes.ApiError {
	return &apitypes.ApiError{Status: 404, Title: "Not Found", Detail: detail}
}
func ErrRangeNotSatisfiable(detail string) *apitypes.ApiError {
	return &apitypes.ApiError{Status: 416, Title: "Range Not Satisfiable", Detail: detail}
}
func ErrInternal(detail string) *apitypes.ApiError {
	return &apitypes.ApiError{Status: 500, Title: "Internal Server Error", Detail: detail}
}

// WrapError normalizes any error into *apitypes.ApiError.
func WrapError(err error) *apitypes.ApiError {
	if err == nil {
		return nil
	}
	var ae *apitypes.ApiError
	if errors.As(err, &ae) {
		return ae
	}
	return ErrInternal(err.Error())
}
