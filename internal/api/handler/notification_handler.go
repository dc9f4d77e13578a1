package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/core/ports"
)

// NotificationHandler exposes the message log: unread listings for viewers,
// the insert path for the chat service, and batched read marks.
type NotificationHandler struct {
	store ports.NotificationStore
}

func NewNotificationHandler(store ports.NotificationStore) *NotificationHandler {
	return &NotificationHandler{store: store}
}

// Unread handles GET /v1/clients/:client_id/messages/unread. The caller's
// role decides which sender type is left out.
//
// @Summary      List unread messages for the caller
// @Tags         messages
// @Produce      json
// @Security     BearerAuth
// @Param        client_id  path      string  true  "Client id"
// @Success      200        {object}  messagesResponse
// @Failure      403        {object}  errorResponse
// @Failure      503        {object}  errorResponse
// @Router       /v1/clients/{client_id}/messages/unread [get]
func (h *NotificationHandler) Unread(c echo.Context) error {
	clientID, role, err := clientScope(c)
	if err != nil {
		return err
	}
	audience, err := domain.AudienceForRole(role)
	if err != nil {
		return err
	}

	msgs, err := h.store.FetchUnreadFor(c.Request().Context(), clientID, audience)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messagesResponse{ClientID: clientID, Count: len(msgs), Messages: msgs})
}

// Append handles POST /v1/clients/:client_id/messages. The sender type is
// the caller's role; the sender name defaults to the caller's username.
//
// @Summary      Append a chat message
// @Tags         messages
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        client_id  path      string                true  "Client id"
// @Param        body       body      appendMessageRequest  true  "Message"
// @Success      201        {object}  domain.Message
// @Failure      400        {object}  errorResponse
// @Failure      422        {object}  errorResponse
// @Router       /v1/clients/{client_id}/messages [post]
func (h *NotificationHandler) Append(c echo.Context) error {
	clientID, role, err := clientScope(c)
	if err != nil {
		return err
	}

	var req appendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	name := req.SenderName
	if name == "" {
		name = ctxUsername(c)
	}
	m, err := h.store.Append(c.Request().Context(), ports.AppendMessageInput{
		ClientID:   clientID,
		SenderType: domain.SenderType(role),
		SenderName: name,
		Body:       req.Body,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

// MarkRead handles POST /v1/messages/read. Already-read ids are ignored.
//
// @Summary      Mark messages read
// @Tags         messages
// @Accept       json
// @Security     BearerAuth
// @Param        body  body  markReadRequest  true  "Message ids"
// @Success      204
// @Failure      422  {object}  errorResponse
// @Failure      503  {object}  errorResponse
// @Router       /v1/messages/read [post]
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	if _, _, err := ctxClaims(c); err != nil {
		return err
	}

	var req markReadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if err := h.store.MarkRead(c.Request().Context(), req.IDs); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
