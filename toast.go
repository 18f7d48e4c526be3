package main

import (
	"strconv"
	"sync/atomic"
)

// Toast represents a notification message to show to observers
type Toast struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // "error", "warning", "success", "info"
	Message string `json:"message"`
}

var toastCounter atomic.Int64

func newToast(toastType, message string) Toast {
	return Toast{ID: strconv.FormatInt(toastCounter.Add(1), 10), Type: toastType, Message: message}
}

// sendErrorToast sends an error toast to a single observer via WebSocket
func (h *Hub) sendErrorToast(client *Client, message string) {
	h.sendJSON(client, "toast", newToast("error", message))
}

// broadcastToast sends a toast to every observer
func (h *Hub) broadcastToast(toastType, message string) {
	h.broadcastJSON("toast", newToast(toastType, message))
}
