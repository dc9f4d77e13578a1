package handler

import (
	"time"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

type assignRequest struct {
	SectorID   string `json:"sector_id"   validate:"required,max=64"`
	SectorName string `json:"sector_name" validate:"required,max=200"`
}

type assignmentResponse struct {
	ClientID   string             `json:"client_id"`
	Assigned   bool               `json:"assigned"`
	Assignment *domain.Assignment `json:"assignment"`
}

type appendMessageRequest struct {
	SenderName string `json:"sender_name" validate:"max=200"`
	Body       string `json:"body"        validate:"required,max=4000"`
}

type messagesResponse struct {
	ClientID string           `json:"client_id"`
	Count    int              `json:"count"`
	Messages []domain.Message `json:"messages"`
}

type markReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,required"`
}

type heartbeatRequest struct {
	ViewerID string `json:"viewer_id" validate:"required,max=128"`
	ClientID string `json:"client_id" validate:"max=128"`
}

type presenceResponse struct {
	ViewerID string    `json:"viewer_id"`
	Online   bool      `json:"online"`
	Role     string    `json:"role,omitempty"`
	ClientID string    `json:"client_id,omitempty"`
	SeenAt   time.Time `json:"seen_at,omitempty"`
}

// errorResponse mirrors the envelope rendered by the central error handler.
type errorResponse struct {
	Error string `json:"error"`
}
