package api

import (
	"encoding/json"
	"net/http"

	"ledger-reconciler/internal/models"
	"ledger-reconciler/internal/parsers"
	"ledger-reconciler/internal/review"
	"ledger-reconciler/internal/service"
	"ledger-reconciler/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ReconcileRequest is the body of POST /api/v1/reconcile. Records stay raw
// here and are decoded one at a time, so a bad record is reported in
// ReconcileResponse.Invalid rather than rejecting the request.
type ReconcileRequest struct {
	Merchant        []json.RawMessage `json:"merchant"`
	Bank            []json.RawMessage `json:"bank"`
	AmountTolerance *decimal.Decimal  `json:"amountTolerance,omitempty"`
	Overrides       []review.Override `json:"overrides,omitempty"`
}

// ReconcileResponse is the body of a successful reconcile call
type ReconcileResponse struct {
	RunID          string                       `json:"run_id"`
	Result         *models.ReconciliationResult `json:"result"`
	Invalid        InvalidRows                  `json:"invalid"`
	OverrideErrors []string                     `json:"override_errors"`
}

// InvalidRows lists the input records that were not reconciled
type InvalidRows struct {
	Merchant []parsers.RowError `json:"merchant"`
	Bank     []parsers.RowError `json:"bank"`
}

// ErrorResponse is returned for every non-2xx answer
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

func (s *Server) reconcile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodyBytes)

	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.ValidationError(errors.CodeBadRequest, "body", nil, err).
			WithSuggestion("send a JSON object with merchant and bank arrays"))
		return
	}

	run, err := s.service.ReconcileJSON(c.Request.Context(), service.JSONRequest{
		Merchant:        req.Merchant,
		Bank:            req.Bank,
		Overrides:       req.Overrides,
		AmountTolerance: req.AmountTolerance,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ReconcileResponse{
		RunID:  run.RunID,
		Result: run.Result,
		Invalid: InvalidRows{
			Merchant: run.MerchantIssues,
			Bank:     run.BankIssues,
		},
		OverrideErrors: run.OverrideMessages(),
	})
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: err.Error(), RequestID: c.GetString(requestIDKey)}

	if rerr, ok := errors.AsReconcilerError(err); ok {
		resp.Error = rerr.Message
		if rerr.Cause != nil {
			resp.Error += ": " + rerr.Cause.Error()
		}
		resp.Code = string(rerr.Code)
		resp.Suggestion = rerr.Suggestion
		switch rerr.Category {
		case errors.CategoryValidation, errors.CategoryParse:
			status = http.StatusBadRequest
		}
		if rerr.Code == errors.CodeCancelled {
			status = http.StatusServiceUnavailable
		}
	}

	s.logger.WithError(err).WithField("request_id", resp.RequestID).Debug("Returning error response")
	c.AbortWithStatusJSON(status, resp)
}
