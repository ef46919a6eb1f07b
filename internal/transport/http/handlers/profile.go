package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/repository"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/usecase"
)

// ProfileService reads profiles through the request cache.
type ProfileService interface {
	Get(ctx context.Context, identityID string) (domain.Profile, error)
}

// IdentitySource reports the signed-in identity.
type IdentitySource interface {
	CurrentIdentity() *domain.Identity
}

var _ ProfileService = (*usecase.ProfileReader)(nil)

var profileErrorCases = []ErrorCase{
	{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "profile not found"},
	{Err: repository.ErrPermissionDenied, Status: http.StatusForbidden, Message: "profile access denied"},
}

// ProfileHandler serves the signed-in identity's profile.
type ProfileHandler struct {
	identities IdentitySource
	profiles   ProfileService
}

// NewProfileHandler constructs a profile handler.
func NewProfileHandler(identities IdentitySource, profiles ProfileService) *ProfileHandler {
	return &ProfileHandler{identities: identities, profiles: profiles}
}

// RegisterRoutes binds profile routes to the provided router group.
func (h *ProfileHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}
	r.GET("", h.Get)
}

// Get returns the current identity's profile.
func (h *ProfileHandler) Get(c *gin.Context) {
	identity := h.identities.CurrentIdentity()
	if identity == nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "no active session"))
		return
	}

	profile, err := h.profiles.Get(c.Request.Context(), identity.IdentityID)
	if err != nil {
		RespondWithMappedError(c, err, profileErrorCases, http.StatusInternalServerError, "failed to load profile")
		return
	}

	c.JSON(http.StatusOK, ProfileResponse{
		IdentityID:     profile.IdentityID,
		Email:          profile.Email,
		Role:           profile.Role,
		LinkedRecordID: profile.LinkedRecordID,
		IsActive:       profile.IsActive,
	})
}
