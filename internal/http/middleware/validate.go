package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/diagnosis/parcel-bookings/internal/http/response"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateBody decodes the JSON body into T and runs its validate tags. A
// request that fails either step never reaches next.
func ValidateBody[T any](next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body T
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			if errors.Is(err, io.EOF) {
				response.BadRequest(w, "request body is required")
				return
			}
			response.WriteErrorWithDetails(w, http.StatusBadRequest, "malformed JSON body", response.CodeInvalidInput, err.Error())
			return
		}
		if err := validate.Struct(body); err != nil {
			response.WriteErrorWithDetails(w, http.StatusBadRequest, "validation failed", response.CodeInvalidInput, describe(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), CtxBody, body)))
	})
}

// Body returns the value stored by ValidateBody[T].
func Body[T any](r *http.Request) T {
	v, _ := r.Context().Value(CtxBody).(T)
	return v
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
