package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stackpoint/account-service/internal/api/metrics"
	"github.com/stackpoint/account-service/internal/core/domain"
	"github.com/stackpoint/account-service/internal/core/ports"
)

// AdminHandler exposes rank-gated account administration. Every route sits
// behind the Auth middleware plus a rank gate; the service layer re-checks
// the hierarchy against the target, so a stale gate never over-grants.
type AdminHandler struct {
	admin ports.AdminService
}

func NewAdminHandler(admin ports.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

type assignRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// AssignRole grants a role to the target account.
//
// @Summary      Assign a role
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "Target account ID"
// @Param        body  body      assignRoleRequest  true  "Role to assign"
// @Success      204
// @Failure      403   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Security     BearerAuth
// @Router       /admin/accounts/{id}/roles [post]
func (h *AdminHandler) AssignRole(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}
	var req assignRoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.observe("assign_role", h.admin.AssignRole(c.Request().Context(), caller, c.Param("id"), req.Role), c)
}

// RemoveRole revokes a role from the target account.
//
// @Summary      Remove a role
// @Tags         admin
// @Produce      json
// @Param        id    path  string  true  "Target account ID"
// @Param        role  path  string  true  "Role to remove"
// @Success      204
// @Failure      403   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Security     BearerAuth
// @Router       /admin/accounts/{id}/roles/{role} [delete]
func (h *AdminHandler) RemoveRole(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}
	return h.observe("remove_role", h.admin.RemoveRole(c.Request().Context(), caller, c.Param("id"), c.Param("role")), c)
}

// LockAccount locks the target account and revokes its sessions.
//
// @Summary      Lock an account
// @Tags         admin
// @Produce      json
// @Param        id  path  string  true  "Target account ID"
// @Success      204
// @Failure      403   {object}  errorResponse
// @Security     BearerAuth
// @Router       /admin/accounts/{id}/lock [post]
func (h *AdminHandler) LockAccount(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}
	return h.observe("lock", h.admin.LockAccount(c.Request().Context(), caller, c.Param("id")), c)
}

// UnlockAccount clears the lockout on the target account.
//
// @Summary      Unlock an account
// @Tags         admin
// @Produce      json
// @Param        id  path  string  true  "Target account ID"
// @Success      204
// @Failure      403   {object}  errorResponse
// @Security     BearerAuth
// @Router       /admin/accounts/{id}/unlock [post]
func (h *AdminHandler) UnlockAccount(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}
	return h.observe("unlock", h.admin.UnlockAccount(c.Request().Context(), caller, c.Param("id")), c)
}

// DeleteAccount permanently removes the target account.
//
// @Summary      Delete an account
// @Tags         admin
// @Produce      json
// @Param        id  path  string  true  "Target account ID"
// @Success      204
// @Failure      403   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Security     BearerAuth
// @Router       /admin/accounts/{id} [delete]
func (h *AdminHandler) DeleteAccount(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}
	return h.observe("delete", h.admin.DeleteAccount(c.Request().Context(), caller, c.Param("id")), c)
}

// SendPasswordReset mails a password-reset link to the target account.
//
// @Summary      Send a password reset
// @Tags         admin
// @Produce      json
// @Param        id  path  string  true  "Target account ID"
// @Success      204
// @Failure      403   {object}  errorResponse
// @Security     BearerAuth
// @Router       /admin/accounts/{id}/password-reset [post]
func (h *AdminHandler) SendPasswordReset(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}
	return h.observe("password_reset", h.admin.SendPasswordReset(c.Request().Context(), caller, c.Param("id")), c)
}

// VerifyEmail marks the target account's email as confirmed.
//
// @Summary      Verify an account's email
// @Tags         admin
// @Produce      json
// @Param        id  path  string  true  "Target account ID"
// @Success      204
// @Failure      403   {object}  errorResponse
// @Security     BearerAuth
// @Router       /admin/accounts/{id}/verify-email [post]
func (h *AdminHandler) VerifyEmail(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}
	return h.observe("verify_email", h.admin.VerifyEmail(c.Request().Context(), caller, c.Param("id")), c)
}

// observe records the admin-action metric and converts a nil error into 204.
func (h *AdminHandler) observe(action string, err error, c echo.Context) error {
	if err != nil {
		metrics.AdminActionsTotal.WithLabelValues(action, adminResult(err)).Inc()
		return err
	}
	metrics.AdminActionsTotal.WithLabelValues(action, "success").Inc()
	return c.NoContent(http.StatusNoContent)
}

func adminResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrHierarchyInsufficient),
		errors.Is(err, domain.ErrSelfAction),
		errors.Is(err, domain.ErrLastAdmin),
		errors.Is(err, domain.ErrRoleAssignAboveRank),
		errors.Is(err, domain.ErrPermissionEscalation):
		return "denied"
	default:
		return "error"
	}
}
