package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/forge-track/forge-track/internal"
	"github.com/forge-track/forge-track/pkg/datamodel"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func HandleInternalServerError(c *gin.Context, err error) {
	if c == nil {
		panic("HandleInternalServerError: c is nil")
	}
	if err == nil {
		err = errors.New("unknown error")
	}

	erx := internal.SanitizeString(err.Error())
	zap.S().Errorw(
		"Internal server error",
		"error", erx,
	)

	c.JSON(
		http.StatusInternalServerError,
		gin.H{
			"error":   erx,
			"status":  http.StatusInternalServerError,
			"message": "The server had an internal error.",
		})
}

func HandleInvalidInputError(c *gin.Context, err error) {
	if c == nil {
		panic("HandleInvalidInputError: c is nil")
	}
	if err == nil {
		err = errors.New("unknown error")
	}
	erx := internal.SanitizeString(err.Error())
	zap.S().Errorw(
		"Invalid input error",
		"error", erx,
	)

	c.JSON(
		http.StatusBadRequest,
		gin.H{
			"error":   erx,
			"status":  http.StatusBadRequest,
			"message": "You have provided a wrong input. Please check your parameters.",
		})
}

// HandleWorkflowError maps the workflow core's error taxonomy onto HTTP
// statuses. Everything in the taxonomy is recoverable by the caller; only
// unknown errors surface as 500.
func HandleWorkflowError(c *gin.Context, err error) {
	if c == nil {
		panic("HandleWorkflowError: c is nil")
	}

	var status int
	switch {
	case errors.Is(err, datamodel.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, datamodel.ErrStructuralInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, datamodel.ErrInsufficientPieces),
		errors.Is(err, datamodel.ErrPieceCountMismatch),
		errors.Is(err, datamodel.ErrInvalidTransition),
		errors.Is(err, datamodel.ErrAlreadyTerminal):
		status = http.StatusConflict
	default:
		HandleInternalServerError(c, err)
		return
	}

	erx := internal.SanitizeString(err.Error())
	zap.S().Infow(
		"Rejected workflow operation",
		"error", erx,
		"status", status,
	)
	c.JSON(status, gin.H{
		"error":  erx,
		"status": status,
	})
}

// CheckIfUserIsAllowed checks if the authenticated user may access the data
// of the given customer
func CheckIfUserIsAllowed(c *gin.Context, customer string) error {
	user := c.MustGet(gin.AuthUserKey)
	if user != customer {
		c.AbortWithStatus(http.StatusUnauthorized)
		zap.S().Infof("User %s unauthorized to access %s", user, internal.SanitizeString(customer))
		return fmt.Errorf("user %s unauthorized to access %s", user, internal.SanitizeString(customer))
	}
	return nil
}
