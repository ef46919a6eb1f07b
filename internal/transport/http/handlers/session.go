package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/usecase"
)

// SessionService is the session orchestrator as seen by the HTTP layer.
type SessionService interface {
	CurrentIdentity() *domain.Identity
	Loading() bool
	SignIn(ctx context.Context, email, password string) (domain.Identity, error)
	SignOut(ctx context.Context) error
	ResetSession(ctx context.Context) error
	AccessToken(ctx context.Context, fresh bool) (string, error)
	RecordActivity(ctx context.Context, eventType string) bool
	OnVisible(ctx context.Context)
}

var _ SessionService = (*usecase.SessionManager)(nil)

var signInErrorCases = []ErrorCase{
	{Err: usecase.ErrCredentialsRequired, Status: http.StatusBadRequest, Message: "email and password are required"},
	{Err: usecase.ErrLockedOut, Status: http.StatusLocked, Message: "too many failed sign-in attempts; reset the session to retry"},
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid email or password"},
	{Err: usecase.ErrBanned, Status: http.StatusForbidden, Message: "account is banned"},
	{Err: usecase.ErrSuperseded, Status: http.StatusConflict, Message: "sign-in was superseded by another session change"},
}

// SessionHandler exposes the local session lifecycle to the front end.
type SessionHandler struct {
	sessions SessionService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(sessions SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// RegisterRoutes binds session routes to the provided router group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.GET("", h.State)
	r.POST("/sign-in", h.SignIn)
	r.POST("/sign-out", h.SignOut)
	r.POST("/reset", h.Reset)
	r.GET("/token", h.Token)
	r.POST("/activity", h.Activity)
	r.POST("/visibility", h.Visibility)
}

// State returns the loading flag and the current identity, which is null when logged out.
func (h *SessionHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, SessionStateResponse{
		Loading:  h.sessions.Loading(),
		Identity: identityResponse(h.sessions.CurrentIdentity()),
	})
}

// SignIn authenticates with email and password.
func (h *SessionHandler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email and password are required"))
		return
	}

	identity, err := h.sessions.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RespondWithMappedError(c, err, signInErrorCases, http.StatusInternalServerError, "sign-in failed")
		return
	}

	c.JSON(http.StatusOK, identityResponse(&identity))
}

// SignOut ends the session locally and remotely.
func (h *SessionHandler) SignOut(c *gin.Context) {
	if err := h.sessions.SignOut(c.Request.Context()); err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "sign-out did not complete cleanly")
		return
	}
	c.Status(http.StatusNoContent)
}

// Reset drops every local auth artifact. It is the recovery path for a stuck loading state.
func (h *SessionHandler) Reset(c *gin.Context) {
	if err := h.sessions.ResetSession(c.Request.Context()); err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "session reset failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// Token returns a usable access token. ?fresh=true forces a refresh first.
func (h *SessionHandler) Token(c *gin.Context) {
	fresh, _ := strconv.ParseBool(c.Query("fresh"))

	token, err := h.sessions.AccessToken(c.Request.Context(), fresh)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrNoSession, Status: http.StatusUnauthorized, Message: "no active session"},
		}, http.StatusInternalServerError, "failed to obtain access token")
		return
	}

	c.JSON(http.StatusOK, TokenResponse{AccessToken: token})
}

// Activity records a user interaction for idle tracking.
func (h *SessionHandler) Activity(c *gin.Context) {
	var req ActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "event is required"))
		return
	}

	c.JSON(http.StatusOK, ActivityResponse{
		Recorded: h.sessions.RecordActivity(c.Request.Context(), req.Event),
	})
}

// Visibility signals that the client became visible again.
func (h *SessionHandler) Visibility(c *gin.Context) {
	h.sessions.OnVisible(c.Request.Context())
	c.Status(http.StatusAccepted)
}
