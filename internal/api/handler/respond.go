package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"challenge_gateway/internal/common"

	"github.com/go-chi/chi/v5"
)

const internalErrorMessage = "Something went wrong. Please try again."

// respondError writes err with its mapped status. Server errors that carry no
// user-facing message are logged and replaced with a generic one.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := common.HTTPStatusFromError(err)
	var de *common.DisplayError
	if status >= http.StatusInternalServerError && !errors.As(err, &de) {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		common.RespondWithError(w, status, internalErrorMessage)
		return
	}
	if status >= http.StatusInternalServerError {
		logger.Warn("upstream failure", "path", r.URL.Path, "error", err)
	}
	common.RespondWithDomainError(w, err)
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.Display(common.ErrBadRequest, "Invalid "+name)
	}
	return id, nil
}

// decodeOptional decodes a JSON body when one was sent.
func decodeOptional(r *http.Request, dst interface{}) error {
	if r.ContentLength == 0 {
		return nil
	}
	return common.DecodeJSON(r, dst)
}
