package tracking

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kunaal-theme/notify/internal/models"
	"github.com/kunaal-theme/notify/internal/pkg/response"
	"github.com/kunaal-theme/notify/internal/pkg/signature"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler serves the signed click-redirect endpoint. A valid signature is
// the only thing that turns this into a redirect; without one it is inert,
// so it cannot be abused as an open redirector.
type Handler struct {
	db     *gorm.DB
	signer *signature.Service
	logger *zap.Logger
}

func NewHandler(db *gorm.DB, signer *signature.Service, logger *zap.Logger) *Handler {
	return &Handler{db: db, signer: signer, logger: logger}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/t/c", h.click)
}

func (h *Handler) click(c *gin.Context) {
	qid, err1 := strconv.ParseUint(c.Query("qid"), 10, 64)
	sid, err2 := strconv.ParseUint(c.Query("sid"), 10, 64)
	if err1 != nil || err2 != nil || qid == 0 || sid == 0 {
		response.BadRequest(c, "invalid tracking link")
		return
	}

	target, err := signature.DecodeTarget(c.Query("u"))
	if err != nil {
		response.BadRequest(c, "invalid tracking link")
		return
	}
	if !h.signer.VerifyClick(qid, sid, target, c.Query("sig")) {
		response.BadRequest(c, "invalid tracking link")
		return
	}

	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		response.BadRequest(c, "invalid tracking link")
		return
	}

	event := models.EmailEvent{
		SubscriberID: sid,
		QueueID:      qid,
		Event:        models.EmailEventClick,
		URL:          target,
		UAHash:       hashUserAgent(c.Request.UserAgent()),
	}
	if err := h.db.Create(&event).Error; err != nil {
		// The redirect matters more than the event row.
		h.logger.Warn("click event insert failed",
			zap.Uint64("queue_id", qid), zap.Error(err))
	}

	c.Redirect(http.StatusFound, target)
}

// hashUserAgent stores only a digest; raw user agents never hit the table.
func hashUserAgent(ua string) string {
	if ua == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ua))
	return hex.EncodeToString(sum[:])
}
