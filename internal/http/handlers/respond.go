package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Failure bodies are always {message, errors?} — no stack traces, no
// internal identifiers.

func RespondValidation(ctx *gin.Context, errs map[string][]string) {
	ctx.JSON(http.StatusUnprocessableEntity, gin.H{
		"message": "The given data was invalid.",
		"errors":  errs,
	})
}

// RespondFieldError is the single-field convenience used by the login path.
func RespondFieldError(ctx *gin.Context, field, message string) {
	RespondValidation(ctx, map[string][]string{
		field: {message},
	})
}

func RespondUnauthenticated(ctx *gin.Context) {
	ctx.JSON(http.StatusUnauthorized, gin.H{
		"message": "Unauthenticated",
	})
}

func RespondForbidden(ctx *gin.Context) {
	ctx.JSON(http.StatusForbidden, gin.H{
		"message": "Unauthorized action.",
	})
}

func RespondNotFound(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusNotFound, gin.H{
		"message": message,
	})
}

func RespondInternal(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusInternalServerError, gin.H{
		"message": message,
	})
}
