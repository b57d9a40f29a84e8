package executor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"batchcall-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// StatusCallback is one recipient-level outcome reported by the executor.
// Callbacks arrive asynchronously and in no defined order; consumers apply
// them last-write-wins keyed by recipient id.
type StatusCallback struct {
	BatchID     string `json:"batch_id"`
	RecipientID string `json:"recipient_id"`

	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	CallRecordID string `json:"call_record_id,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// ErrUnknownStatus is returned by updaters when a callback carries a status
// outside the known set. The webhook rejects these as client errors instead
// of storing an unrecognized state.
var ErrUnknownStatus = errors.New("unknown recipient status")

// RecipientUpdater applies a recipient outcome to storage.
type RecipientUpdater interface {
	ApplyRecipientOutcome(ctx context.Context, cb StatusCallback) error
}

// WebhookHandler converts executor callbacks to internal updates.
//
// No business logic here; the updater owns counter bookkeeping and
// completion detection.
type WebhookHandler struct {
	Updater RecipientUpdater

	Now func() time.Time
}

func (h WebhookHandler) HandleStatusCallback(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Updater == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "updater not configured"})
		return
	}

	var cb StatusCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		log.Warn("executor callback parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if cb.BatchID == "" || cb.RecipientID == "" || cb.Status == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "batch_id, recipient_id, status required"})
		return
	}
	if cb.OccurredAt.IsZero() {
		now := time.Now
		if h.Now != nil {
			now = h.Now
		}
		cb.OccurredAt = now().UTC()
	}

	if err := h.Updater.ApplyRecipientOutcome(c.Request.Context(), cb); err != nil {
		if errors.Is(err, ErrUnknownStatus) {
			log.Warn("executor callback with unknown status", "batch_id", cb.BatchID, "recipient_id", cb.RecipientID, "status", cb.Status)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error("recipient outcome apply failed", "batch_id", cb.BatchID, "recipient_id", cb.RecipientID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
