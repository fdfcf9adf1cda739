package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taskora-dev/taskora/internal/gateway"
	ledgerdomain "github.com/taskora-dev/taskora/internal/ledger/domain"
	providerdomain "github.com/taskora-dev/taskora/internal/provider/domain"
	settlementdomain "github.com/taskora-dev/taskora/internal/settlement/domain"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	errInvalidRequest = errors.New("invalid_request")
)

func respondData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func invalidRequestError() error {
	return errInvalidRequest
}

// AbortWithError maps domain errors onto HTTP statuses. Unknown errors stay
// opaque 500s so internals never leak into responses.
func AbortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal_error"

	switch {
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusUnauthorized
		message = err.Error()
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, providerdomain.ErrValidation),
		errors.Is(err, providerdomain.ErrInvalidTier),
		errors.Is(err, settlementdomain.ErrUnknownStatus):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, providerdomain.ErrProviderNotFound),
		errors.Is(err, ledgerdomain.ErrAttemptNotFound),
		errors.Is(err, gateway.ErrTokenNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, ledgerdomain.ErrPendingAttemptExists),
		errors.Is(err, ledgerdomain.ErrConflictingSettlement):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, gateway.ErrRejected):
		status = http.StatusUnprocessableEntity
		message = err.Error()
	case errors.Is(err, gateway.ErrUnavailable):
		status = http.StatusBadGateway
		message = err.Error()
	}

	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
