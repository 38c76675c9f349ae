package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/comanda-pos/api/internal/money"
	"github.com/comanda-pos/api/internal/service"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Due    string            `json:"due,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// statusFor maps a business error code to its HTTP status.
func statusFor(code service.Code) int {
	switch code {
	case service.CodeValidation, service.CodeInvalidTransition, service.CodeInvalidMove,
		service.CodeIncompatibleUnit, service.CodeUnknownUnit:
		return http.StatusBadRequest
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeAlreadyClosed, service.CodeKitchenPending, service.CodeInsufficientPayment,
		service.CodeNoOpenSession, service.CodeOrderNotOpen, service.CodeTableOccupied,
		service.CodeHasPayments, service.CodeSessionAlreadyOpen, service.CodeRefundExceedsPayment,
		service.CodeConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError turns err into a JSON error body. Anything that is not a
// known business or request error is logged and reported as a 500 without
// leaking its text.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  reqErr.msg,
			Code:   string(service.CodeValidation),
			Fields: reqErr.fields,
		})
		return
	}

	code := service.CodeOf(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err))
		writeJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}

	resp := errorResponse{Error: err.Error(), Code: string(code)}
	if due, ok := service.DueOf(err); ok {
		resp.Due = money.Format(due)
	}
	writeJSON(w, status, resp)
}
