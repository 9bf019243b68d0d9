// Package validation provides input validation middleware for the Proptor API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

var (
	// idRegex validates prefixed resource IDs (e.g. "con_a1b2...", "alert_...")
	idRegex = regexp.MustCompile(`^[a-z]+_[a-f0-9]{16,32}$`)
	// emailRegex is deliberately loose; the mail system is the real validator
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Sales funnel stages a contact can be in.
var salesStages = map[string]bool{
	"new_lead":          true,
	"contacted":         true,
	"viewing_scheduled": true,
	"offer_made":        true,
	"negotiation":       true,
	"closed_won":        true,
	"closed_lost":       true,
}

// Recovery action types.
var actionTypes = map[string]bool{
	"priority_call":        true,
	"discount_offer":       true,
	"alternative_proposal": true,
	"escalation":           true,
	"follow_up_email":      true,
}

// Recovery action outcomes.
var outcomes = map[string]bool{
	"pending":    true,
	"successful": true,
	"failed":     true,
}

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidID checks if a string is a well-formed prefixed resource ID
func IsValidID(id string) bool {
	return idRegex.MatchString(id)
}

// IsValidEmail checks if a string looks like an email address
func IsValidEmail(s string) bool {
	return len(s) <= 254 && emailRegex.MatchString(s)
}

// IsValidSalesStage checks if a string is a known sales funnel stage
func IsValidSalesStage(s string) bool {
	return salesStages[s]
}

// IsValidActionType checks if a string is a known recovery action type
func IsValidActionType(s string) bool {
	return actionTypes[s]
}

// IsValidOutcome checks if a string is a known recovery action outcome
func IsValidOutcome(s string) bool {
	return outcomes[s]
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	// Trim whitespace
	s = strings.TrimSpace(s)

	// Limit length
	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidStage checks if a field is a known sales funnel stage
func ValidStage(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidSalesStage(value) {
			return &ValidationError{Field: field, Message: "must be a valid sales stage"}
		}
		return nil
	}
}

// ValidActionType checks if a field is a known recovery action type
func ValidActionType(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidActionType(value) {
			return &ValidationError{Field: field, Message: "must be a valid action type"}
		}
		return nil
	}
}

// ValidOutcome checks if a field is a known recovery action outcome
func ValidOutcome(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidOutcome(value) {
			return &ValidationError{Field: field, Message: "must be pending, successful, or failed"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// IDParamMiddleware validates the :id URL parameter on routes that use it.
// Apply to route groups that include :id params to reject malformed IDs early.
func IDParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if id != "" && !IsValidID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_id",
				"message": "id must be a prefixed resource identifier",
			})
			return
		}
		c.Next()
	}
}
