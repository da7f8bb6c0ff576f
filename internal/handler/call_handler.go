package handler

import (
	"net/http"

	"harbor-chat/internal/events"
	"harbor-chat/internal/registry"
	"harbor-chat/internal/services"
	"harbor-chat/internal/transport/httpdto"
	"harbor-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallHandler relays call signals between the two engines involved in a
// call. The server holds no call state; it only validates and routes.
type CallHandler struct {
	registry    registry.Registry
	stunServers []string
	log         *logger.Logger
}

func NewCallHandler(reg registry.Registry, stunServers []string, log *logger.Logger) *CallHandler {
	return &CallHandler{registry: reg, stunServers: stunServers, log: log}
}

// Signal handles POST /call/signal: the sender must be one of the two
// parties, and the signal is pushed to the other one. Delivery misses
// are reported, not errors; the caller decides how to surface them.
func (h *CallHandler) Signal(c *gin.Context) {
	var req httpdto.CallSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	sig := req.ToSignal()
	if !sig.Valid() {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid signal", "INVALID_REQUEST"))
		return
	}
	senderID := userID.String()
	if sig.Caller.ID != senderID && sig.Receiver.ID != senderID {
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("not a call party", "FORBIDDEN"))
		return
	}

	target := sig.Counterpart(senderID)
	ev, err := events.New(events.Type(sig.Type), sig)
	if err != nil {
		respondError(c, err)
		return
	}

	delivered := h.registry.Send(c.Request.Context(), target.ID, ev)
	if !delivered {
		h.log.Infof("call %s: %s not delivered, %s offline", sig.CallID, sig.Type, target.ID)
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.CallSignalResponse{Delivered: delivered}))
}

// Connected handles GET /call/connected.
func (h *CallHandler) Connected(c *gin.Context) {
	ids := h.registry.ListConnectedUserIDs(c.Request.Context())
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ConnectedUsersResponse{UserIDs: ids}))
}

// Config handles GET /call/config: the STUN servers clients hand to
// their peer transports.
func (h *CallHandler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.CallConfigResponse{StunServers: h.stunServers}))
}
