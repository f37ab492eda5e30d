package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"localhost-events/internal/services"
	"localhost-events/internal/utils"
)

type StorefrontHandler struct {
	storefront *services.StorefrontService
}

func NewStorefrontHandler(storefront *services.StorefrontService) *StorefrontHandler {
	return &StorefrontHandler{
		storefront: storefront,
	}
}

func (h *StorefrontHandler) ListEvents(c *gin.Context) {
	events, err := h.storefront.ListEvents(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, utils.ErrorResponse("Failed to list events", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Events retrieved", events))
}

func (h *StorefrontHandler) GetEvent(c *gin.Context) {
	event, err := h.storefront.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrEventNotFound) {
			c.JSON(http.StatusNotFound, utils.ErrorResponse("Event not found", ""))
			return
		}
		c.JSON(http.StatusServiceUnavailable, utils.ErrorResponse("Failed to retrieve event", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Event retrieved", event))
}

// buyerID reads the identity the auth layer in front of this service
// resolved. Authentication itself is out of scope here.
func buyerID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

func (h *StorefrontHandler) ListTickets(c *gin.Context) {
	buyer := buyerID(c)
	if buyer == "" {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Missing user identity", ""))
		return
	}

	tickets, err := h.storefront.ListTickets(c.Request.Context(), buyer)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, utils.ErrorResponse("Failed to list tickets", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Tickets retrieved", tickets))
}

func (h *StorefrontHandler) GetTicket(c *gin.Context) {
	buyer := buyerID(c)
	if buyer == "" {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Missing user identity", ""))
		return
	}

	ticket, err := h.storefront.GetTicket(c.Request.Context(), c.Param("id"), buyer)
	if err != nil {
		if errors.Is(err, services.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, utils.ErrorResponse("Ticket not found", ""))
			return
		}
		c.JSON(http.StatusServiceUnavailable, utils.ErrorResponse("Failed to retrieve ticket", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Ticket retrieved", ticket))
}
