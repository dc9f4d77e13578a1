package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atelier-portal/portal-sync/internal/core/ports"
)

// AssignmentHandler serves the sector assignment of a client and the client
// record that mirrors it.
type AssignmentHandler struct {
	store   ports.AssignmentStore
	clients ports.ClientDirectory
}

func NewAssignmentHandler(store ports.AssignmentStore, clients ports.ClientDirectory) *AssignmentHandler {
	return &AssignmentHandler{store: store, clients: clients}
}

// Get handles GET /v1/clients/:client_id/assignment.
//
// @Summary      Get the client's current assignment
// @Tags         assignments
// @Produce      json
// @Security     BearerAuth
// @Param        client_id  path      string  true  "Client id"
// @Success      200        {object}  assignmentResponse
// @Failure      403        {object}  errorResponse
// @Failure      503        {object}  errorResponse
// @Router       /v1/clients/{client_id}/assignment [get]
func (h *AssignmentHandler) Get(c echo.Context) error {
	clientID, _, err := clientScope(c)
	if err != nil {
		return err
	}

	a, err := h.store.Get(c.Request().Context(), clientID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, assignmentResponse{ClientID: clientID, Assigned: a != nil, Assignment: a})
}

// Put handles PUT /v1/clients/:client_id/assignment. Any previous sector is
// replaced in the same write.
//
// @Summary      Assign a sector to a client
// @Tags         assignments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        client_id  path      string         true  "Client id"
// @Param        body       body      assignRequest  true  "Sector"
// @Success      200        {object}  assignmentResponse
// @Failure      400        {object}  errorResponse
// @Failure      422        {object}  errorResponse
// @Failure      503        {object}  errorResponse
// @Router       /v1/clients/{client_id}/assignment [put]
func (h *AssignmentHandler) Put(c echo.Context) error {
	clientID, _, err := clientScope(c)
	if err != nil {
		return err
	}

	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	a, err := h.store.Assign(c.Request().Context(), ports.AssignInput{
		ClientID:   clientID,
		SectorID:   req.SectorID,
		SectorName: req.SectorName,
		Actor:      ctxUsername(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, assignmentResponse{ClientID: clientID, Assigned: true, Assignment: a})
}

// Delete handles DELETE /v1/clients/:client_id/assignment.
//
// @Summary      Unassign the client's sector
// @Tags         assignments
// @Security     BearerAuth
// @Param        client_id  path  string  true  "Client id"
// @Success      204
// @Failure      503  {object}  errorResponse
// @Router       /v1/clients/{client_id}/assignment [delete]
func (h *AssignmentHandler) Delete(c echo.Context) error {
	clientID, _, err := clientScope(c)
	if err != nil {
		return err
	}
	if err := h.store.Unassign(c.Request().Context(), clientID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// GetClient handles GET /v1/clients/:client_id.
//
// @Summary      Get a client record
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        client_id  path      string  true  "Client id"
// @Success      200        {object}  domain.ClientRecord
// @Failure      404        {object}  errorResponse
// @Router       /v1/clients/{client_id} [get]
func (h *AssignmentHandler) GetClient(c echo.Context) error {
	clientID, _, err := clientScope(c)
	if err != nil {
		return err
	}
	rec, err := h.clients.GetClient(c.Request().Context(), clientID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}
