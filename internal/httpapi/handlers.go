package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"batchcall-platform/internal/auth"
	"batchcall-platform/internal/campaign"
	"batchcall-platform/internal/ingest"
	"batchcall-platform/internal/reporting"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth    *auth.Manager
	Batches *campaign.Service
	Reports *reporting.Service
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Batches ---

type recipientRow struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

// batchRequest is the create/update payload. Recipients come in two forms:
// RecipientsText is raw delimited upload text, Recipients are manually
// entered rows; they are merged (bulk first) before submission.
type batchRequest struct {
	Name     string `json:"name"`
	AgentID  string `json:"agent_id"`
	CallerID string `json:"caller_id"`

	SendNow     bool       `json:"send_now"`
	ScheduledAt *time.Time `json:"scheduled_at"`

	WindowStartTime string `json:"window_start_time"`
	WindowEndTime   string `json:"window_end_time"`
	WindowDays      []int  `json:"window_days"`

	ReservedConcurrency int `json:"reserved_concurrency"`

	RecurrenceType         string     `json:"recurrence_type"`
	RecurrenceInterval     int        `json:"recurrence_interval"`
	RecurrenceEndCondition string     `json:"recurrence_end_condition"`
	RecurrenceMaxRuns      int        `json:"recurrence_max_runs"`
	RecurrenceEndDate      *time.Time `json:"recurrence_end_date"`

	RecipientsText string         `json:"recipients_text"`
	Recipients     []recipientRow `json:"recipients"`

	// Draft saves without submitting; validation is deferred to submit.
	Draft bool `json:"draft"`
}

func (r batchRequest) toDraft() (campaign.Draft, error) {
	var bulk []campaign.Recipient
	if r.RecipientsText != "" {
		parsed, err := ingest.ParseText(r.RecipientsText)
		if err != nil {
			return campaign.Draft{}, err
		}
		bulk = parsed.Recipients
	}
	manual := make([]ingest.Row, len(r.Recipients))
	for i, row := range r.Recipients {
		manual[i] = ingest.Row{Name: row.Name, Phone: row.PhoneNumber}
	}
	merged, err := ingest.Merge(bulk, manual)
	if err != nil {
		return campaign.Draft{}, err
	}

	days := make([]time.Weekday, len(r.WindowDays))
	for i, d := range r.WindowDays {
		days[i] = time.Weekday(d)
	}

	d := campaign.Draft{
		Name:                r.Name,
		AgentID:             r.AgentID,
		CallerID:            r.CallerID,
		SendNow:             r.SendNow,
		ScheduledAt:         r.ScheduledAt,
		Window:              campaign.Window{Start: r.WindowStartTime, End: r.WindowEndTime, Days: days},
		ReservedConcurrency: r.ReservedConcurrency,
		Recipients:          merged.Recipients,
	}
	if r.RecurrenceType != "" && r.RecurrenceType != string(campaign.RuleNone) {
		d.Recurrence = campaign.Rule{
			Type:     campaign.RuleType(r.RecurrenceType),
			Interval: r.RecurrenceInterval,
			End:      campaign.EndCondition(r.RecurrenceEndCondition),
			MaxRuns:  r.RecurrenceMaxRuns,
		}
		if r.RecurrenceEndDate != nil {
			d.Recurrence.EndDate = *r.RecurrenceEndDate
		}
	}
	return d, nil
}

func (h Handlers) CreateBatch(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	d, err := req.toDraft()
	if err != nil {
		writeBatchError(c, err)
		return
	}

	var out campaign.Campaign
	if req.Draft {
		out, err = h.Batches.CreateDraft(c.Request.Context(), userID, d)
	} else {
		out, err = h.Batches.Submit(c.Request.Context(), userID, d)
	}
	if err != nil {
		writeBatchError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h Handlers) UpdateBatch(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	d, err := req.toDraft()
	if err != nil {
		writeBatchError(c, err)
		return
	}
	out, err := h.Batches.UpdateDraft(c.Request.Context(), userID, c.Param("batch_id"), d)
	if err != nil {
		writeBatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) ListBatches(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	status := campaign.Status(c.Query("status"))

	out, err := h.Batches.List(c.Request.Context(), userID, status, limit, offset)
	if err != nil {
		writeBatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": out})
}

func (h Handlers) GetBatch(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	out, err := h.Batches.Get(c.Request.Context(), userID, c.Param("batch_id"))
	if err != nil {
		writeBatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) StartBatch(c *gin.Context) {
	h.batchAction(c, h.Batches.Start)
}

func (h Handlers) CancelBatch(c *gin.Context) {
	h.batchAction(c, h.Batches.Cancel)
}

func (h Handlers) PauseSeries(c *gin.Context) {
	h.batchAction(c, h.Batches.PauseSeries)
}

func (h Handlers) ResumeSeries(c *gin.Context) {
	h.batchAction(c, h.Batches.ResumeSeries)
}

func (h Handlers) SeriesNextRun(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	next, err := h.Batches.SeriesNext(c.Request.Context(), userID, c.Param("batch_id"), time.Now())
	if errors.Is(err, campaign.ErrSeriesEnded) {
		c.JSON(http.StatusOK, gin.H{"ended": true})
		return
	}
	if err != nil {
		writeBatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ended": false, "next_run_at": next})
}

func (h Handlers) RetryRecipient(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	if err := h.Batches.RetryRecipient(c.Request.Context(), userID, c.Param("recipient_id")); err != nil {
		writeBatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// --- Recipient ingestion ---

type previewRequest struct {
	RecipientsText string         `json:"recipients_text"`
	Recipients     []recipientRow `json:"recipients"`
}

// PreviewRecipients parses and merges recipient input without persisting,
// so callers can render validation results before submitting.
func (h Handlers) PreviewRecipients(c *gin.Context) {
	if _, ok := h.requireUser(c); !ok {
		return
	}
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var bulk []campaign.Recipient
	skipped := 0
	if req.RecipientsText != "" {
		parsed, err := ingest.ParseText(req.RecipientsText)
		if err != nil {
			writeBatchError(c, err)
			return
		}
		bulk = parsed.Recipients
		skipped = parsed.Skipped
	}
	manual := make([]ingest.Row, len(req.Recipients))
	for i, row := range req.Recipients {
		manual[i] = ingest.Row{Name: row.Name, Phone: row.PhoneNumber}
	}
	merged, err := ingest.Merge(bulk, manual)
	if err != nil {
		writeBatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"recipients": merged.Recipients,
		"skipped":    skipped,
		"count":      len(merged.Recipients),
		"limit":      ingest.MaxRecipients,
	})
}

func (h Handlers) RecipientTemplate(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="recipients_template.csv"`)
	c.Data(http.StatusOK, "text/csv", []byte(ingest.Template))
}

// --- Reports ---

func (h Handlers) BatchesSummary(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	from, err1 := time.Parse(time.RFC3339, c.Query("from"))
	to, err2 := time.Parse(time.RFC3339, c.Query("to"))
	if err1 != nil || err2 != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from and to must be RFC3339 timestamps"})
		return
	}
	out, err := h.Reports.BatchesSummary(c.Request.Context(), reporting.BatchesSummaryRequest{
		UserID: userID,
		Range:  reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		writeBatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) RecipientBreakdown(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	out, err := h.Reports.RecipientBreakdown(c.Request.Context(), userID, c.Param("batch_id"))
	if err != nil {
		writeBatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) SeriesReport(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	out, err := h.Reports.SeriesReport(c.Request.Context(), userID, c.Param("batch_id"))
	if err != nil {
		writeBatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- helpers ---

func (h Handlers) requireUser(c *gin.Context) (string, bool) {
	if h.Batches == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "batches not configured"})
		return "", false
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return "", false
	}
	return userID, true
}

func (h Handlers) batchAction(c *gin.Context, fn func(ctx context.Context, userID, batchID string) error) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), userID, c.Param("batch_id")); err != nil {
		writeBatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// writeBatchError maps service errors to HTTP statuses. Local validation is
// 400/422, ownership misses are 404, illegal lifecycle actions 409, and
// executor rejections surface as 502 with the remote message.
func writeBatchError(c *gin.Context, err error) {
	var (
		ve  *campaign.ValidationError
		ite *campaign.IllegalTransitionError
		ee  *campaign.ExecutorError
		lim *ingest.RecipientLimitExceededError
	)
	switch {
	case errors.As(err, &lim):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": lim.Error()})
	case errors.Is(err, ingest.ErrEmptyInput), errors.Is(err, ingest.ErrMissingPhoneColumn):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &ve):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ve.Msg})
	case errors.As(err, &ite):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": ite.Error()})
	case errors.As(err, &ee):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": ee.Error()})
	case campaign.IsNotFound(err):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, reporting.ErrInvalidRequest), errors.Is(err, campaign.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
