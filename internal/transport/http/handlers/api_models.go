package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with the trace ID from context.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse describes the liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// IdentityResponse is the API view of the current identity.
type IdentityResponse struct {
	IdentityID     string      `json:"identity_id"`
	Email          string      `json:"email"`
	Role           domain.Role `json:"role"`
	LinkedRecordID *string     `json:"linked_record_id,omitempty"`
	IsActive       bool        `json:"is_active"`
	Degraded       bool        `json:"degraded"`
	CachedAt       time.Time   `json:"cached_at"`
}

// SessionStateResponse is the payload of GET /api/v1/session.
type SessionStateResponse struct {
	Loading  bool              `json:"loading"`
	Identity *IdentityResponse `json:"identity"`
}

// SignInRequest defines the payload for the sign-in endpoint.
type SignInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse carries a usable access token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
}

// ActivityRequest reports a user interaction.
type ActivityRequest struct {
	Event string `json:"event" binding:"required"`
}

// ActivityResponse reports whether the interaction counted as activity.
type ActivityResponse struct {
	Recorded bool `json:"recorded"`
}

// ProfileResponse is the API view of the signed-in identity's profile.
type ProfileResponse struct {
	IdentityID     string      `json:"identity_id"`
	Email          string      `json:"email"`
	Role           domain.Role `json:"role"`
	LinkedRecordID *string     `json:"linked_record_id,omitempty"`
	IsActive       bool        `json:"is_active"`
}

// CacheInvalidateResponse reports how many cache entries were removed.
type CacheInvalidateResponse struct {
	Removed int `json:"removed"`
}

func identityResponse(identity *domain.Identity) *IdentityResponse {
	if identity == nil {
		return nil
	}
	return &IdentityResponse{
		IdentityID:     identity.IdentityID,
		Email:          identity.Email,
		Role:           identity.Role,
		LinkedRecordID: identity.LinkedRecordID,
		IsActive:       identity.IsActive,
		Degraded:       identity.Degraded,
		CachedAt:       identity.CachedAt,
	}
}
