package api

import (
	"context"
	"net/http"
	"strconv"

	"subject-choices/internal/analysis"
	"subject-choices/internal/config"
	"subject-choices/internal/logger"
	"subject-choices/internal/model"
	"subject-choices/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// JobEnqueuer hands an upload to the ingestion worker. *queue.Producer satisfies it.
type JobEnqueuer interface {
	EnqueueIngestionJob(ctx context.Context, job model.IngestionJob) error
}

type Handler struct {
	svc      *analysis.Service
	producer JobEnqueuer
	cfg      *config.Config
	log      zerolog.Logger
}

// NewHandler builds the HTTP handlers. producer may be nil, in which case
// asynchronous processing is refused.
func NewHandler(svc *analysis.Service, producer JobEnqueuer, cfg *config.Config) *Handler {
	return &Handler{
		svc:      svc,
		producer: producer,
		cfg:      cfg,
		log:      logger.Get().With().Str("component", "api_handler").Logger(),
	}
}

type reviewRequest struct {
	Mappings map[string]string `json:"mappings"`
	Save     bool              `json:"save"`
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var (
		schemaErr     errors.SchemaError
		validationErr errors.ValidationError
		processedErr  errors.AlreadyProcessedError
		forbiddenErr  errors.UnauthorizedError
	)

	switch {
	case errors.As(err, &schemaErr),
		errors.As(err, &validationErr),
		errors.Is(err, errors.ErrInvalidYearGroup),
		errors.Is(err, errors.ErrUnsupportedFileType),
		errors.Is(err, errors.ErrInvalidFileFormat):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &processedErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "upload_id": processedErr.UploadID})
	case errors.As(err, &forbiddenErr):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrUploadNotFound),
		errors.Is(err, errors.ErrRecordNotFound),
		errors.Is(err, errors.ErrMappingNotFound),
		errors.Is(err, errors.ErrFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return id, true
}

func flag(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	return err == nil && v
}

func (h *Handler) Upload(c *gin.Context) {
	h.receive(c, false)
}

func (h *Handler) Import(c *gin.Context) {
	h.receive(c, true)
}

// receive reads the multipart "file" field and the year_group form value.
func (h *Handler) receive(c *gin.Context, ingest bool) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}

	file, err := header.Open()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to open uploaded file")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	actor := actorFrom(c)
	yearGroup := c.PostForm("year_group")

	if ingest {
		result, err := h.svc.Import(ctx, actor, header.Filename, file, yearGroup)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
		return
	}

	upload, err := h.svc.Upload(ctx, actor, header.Filename, file, yearGroup)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, upload)
}

func (h *Handler) ListUploads(c *gin.Context) {
	uploads, err := h.svc.ListUploads(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, uploads)
}

func (h *Handler) GetUpload(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	detail, err := h.svc.UploadDetail(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) DeleteUpload(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteUpload(c.Request.Context(), actorFrom(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Upload deleted", "upload_id": id})
}

func (h *Handler) FindUnmapped(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	result, err := h.svc.FindUnmapped(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) ConfirmReview(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	outcome, err := h.svc.ConfirmAndProcess(c.Request.Context(), actorFrom(c), id, req.Mappings, req.Save)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// Process ingests an upload. With async=true the review check still runs
// here and only the ingestion itself is queued.
func (h *Handler) Process(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	actor := actorFrom(c)
	skipReview := flag(c, "skip_review")

	if !flag(c, "async") {
		outcome, err := h.svc.Process(ctx, actor, id, skipReview)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, outcome)
		return
	}

	if h.producer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Asynchronous processing is not configured"})
		return
	}

	if skipReview {
		upload, err := h.svc.GetUpload(ctx, actor, id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if upload.Processed {
			h.respondError(c, errors.AlreadyProcessedError{UploadID: upload.ID})
			return
		}
	} else {
		result, err := h.svc.FindUnmapped(ctx, actor, id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if result.NeedsReview() {
			c.JSON(http.StatusOK, analysis.ProcessOutcome{Review: result})
			return
		}
	}

	job := model.IngestionJob{UploadID: id, ActorID: actor.ID}
	if err := h.producer.EnqueueIngestionJob(ctx, job); err != nil {
		h.log.Error().Err(err).Int64("upload_id", id).Msg("Failed to enqueue ingestion job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue ingestion job"})
		return
	}

	h.log.Info().Int64("upload_id", id).Str("actor_id", actor.ID).Msg("Ingestion job enqueued")
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Ingestion job queued successfully",
		"job":     job,
	})
}

func (h *Handler) Recompute(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	totals, err := h.svc.Recompute(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upload_id": id, "totals": totals})
}

func (h *Handler) Totals(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	view, err := h.svc.Totals(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) Coincidence(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	matrix, err := h.svc.Coincidence(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, matrix)
}

func (h *Handler) ToggleRecord(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	result, err := h.svc.ToggleInclusion(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) YearSummary(c *gin.Context) {
	summary, err := h.svc.YearSummary(c.Request.Context(), actorFrom(c), c.Param("year_group"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) Compare(c *gin.Context) {
	comparison, err := h.svc.Compare(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comparison)
}

func (h *Handler) Dashboard(c *gin.Context) {
	dashboard, err := h.svc.Dashboard(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func (h *Handler) ListMappings(c *gin.Context) {
	mappings, err := h.svc.ListMappings(c.Request.Context(), c.Query("year_group"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mappings)
}

func (h *Handler) SaveMapping(c *gin.Context) {
	var input analysis.MappingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	mapping, err := h.svc.SaveMapping(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapping)
}

func (h *Handler) DeleteMapping(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteMapping(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Mapping deleted", "mapping_id": id})
}

func (h *Handler) BuiltinMappings(c *gin.Context) {
	entries, err := h.svc.BuiltinMappings(c.Param("year_group"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
	})
}
