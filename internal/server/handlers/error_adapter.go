package handlers

import (
	"net/http"

	apperrors "github.com/crawlpace/crawlpace/internal/errors"
)

// ErrorResponder writes an error as an HTTP response.
type ErrorResponder func(http.ResponseWriter, *http.Request, error)

var httpErrorResponder ErrorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder routes handler errors through the server's handler.
// A nil responder restores the package default.
func SetHTTPErrorResponder(responder ErrorResponder) {
	if responder == nil {
		responder = apperrors.RespondWithError
	}
	httpErrorResponder = responder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}
