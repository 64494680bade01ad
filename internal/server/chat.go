package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/comigor/botdesk/internal/chat"
	"github.com/comigor/botdesk/internal/logger"
)

// handleChat serves POST /api/chat. In streaming mode the 200 status is
// committed before the provider is called, so later failures can only be
// reported in-band as an error frame.
func (h *handler) handleChat(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	fw := chat.NewFrameWriter(c.Writer)
	res, err := h.chat.Handle(ctx, req, fw)
	if err != nil {
		if fw.Opened() {
			if werr := fw.Fail(err.Error()); werr != nil {
				logger.FromContext(ctx).Debug("error frame not delivered", "error", werr)
			}
			return
		}
		c.JSON(statusFor(chat.KindOf(err)), gin.H{"error": err.Error()})
		return
	}

	if !res.Streamed {
		if err := fw.Emit(res.Reply); err != nil {
			logger.FromContext(ctx).Debug("reply not delivered", "error", err)
		}
	}
}

func statusFor(kind chat.Kind) int {
	switch kind {
	case chat.KindBadRequest:
		return http.StatusBadRequest
	case chat.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
