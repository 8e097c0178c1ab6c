package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/frameio-archiver/internal/archive"
	"github.com/andresuchdata/frameio-archiver/internal/domain"
)

const formTitle = "Frame.io → External Archive"

// Archiver is the part of the archive service the handlers drive.
type Archiver interface {
	Submit(ctx context.Context, req archive.Request) (*domain.JobReport, error)
	Report(ctx context.Context, id string) (*domain.JobReport, error)
	Cancel(id string) bool
	DestinationNames() []string
	Bucket(destination string) (string, error)
}

// Importer copies a stored object back into the asset service.
type Importer interface {
	Import(ctx context.Context, req archive.ImportRequest) (*archive.ImportResult, error)
	FolderName() string
}

type ArchiveHandler struct {
	jobs     Archiver
	tree     archive.TreeProvider
	importer Importer
}

func NewArchiveHandler(jobs Archiver, tree archive.TreeProvider) *ArchiveHandler {
	return &ArchiveHandler{jobs: jobs, tree: tree}
}

// WithImporter enables the import choice in the action form.
func (h *ArchiveHandler) WithImporter(importer Importer) *ArchiveHandler {
	h.importer = importer
	return h
}

// HandleAction answers the custom action callback. The first call carries no
// answers and gets the selection form; the second carries them and starts an
// archive job, or an import when that was chosen.
func (h *ArchiveHandler) HandleAction(c *gin.Context) {
	var payload WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := payload.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if payload.Data == nil {
		h.respondForm(c, payload)
		return
	}
	if payload.Data.IsImport() {
		h.handleImport(c, payload)
		return
	}

	report, err := h.jobs.Submit(c.Request.Context(), archive.Request{
		ResourceID:  strings.TrimSpace(payload.Data.ResourceID),
		Destination: strings.TrimSpace(payload.Data.Destination),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	log.Info().
		Str("job_id", report.ID).
		Str("resource_id", report.ResourceID).
		Str("bucket", report.Bucket).
		Str("interaction_id", payload.InteractionID).
		Str("user_id", payload.User.ID).
		Msg("archive job accepted")

	c.JSON(http.StatusAccepted, MessageResponse{
		JobID:       report.ID,
		Title:       "Archive started",
		Description: fmt.Sprintf("Archiving to %s. Job %s will report when it finishes.", report.Bucket, report.ID),
	})
}

func (h *ArchiveHandler) handleImport(c *gin.Context, payload WebhookPayload) {
	if h.importer == nil {
		writeError(c, domain.NewValidation("importing is not enabled for this source"))
		return
	}

	bucket, err := h.jobs.Bucket(strings.TrimSpace(payload.Data.Destination))
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.importer.Import(c.Request.Context(), archive.ImportRequest{
		ResourceID: payload.Resource.ID,
		ProjectID:  payload.Project.ID,
		Bucket:     bucket,
		Key:        strings.TrimSpace(payload.Data.ObjectKey),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	log.Info().
		Str("bucket", result.Bucket).
		Str("key", result.Key).
		Str("asset_id", result.AssetID).
		Str("interaction_id", payload.InteractionID).
		Str("user_id", payload.User.ID).
		Msg("import accepted")

	c.JSON(http.StatusOK, MessageResponse{
		Title: "Import started",
		Description: fmt.Sprintf("%s (%s) is being imported into the %s folder.",
			result.AssetName, domain.FormatBytes(result.Bytes, domain.FormatSize), h.importer.FolderName()),
	})
}

func (h *ArchiveHandler) respondForm(c *gin.Context, payload WebhookPayload) {
	if err := validation.Validate(payload.Project.ID, validation.Required); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project.id: " + err.Error()})
		return
	}

	form, err := h.BuildForm(c.Request.Context(), payload.Resource.ID, payload.Project.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

// BuildForm assembles the selection form for a resource: where to archive
// to, and whether to archive the project, the asset or its parent folder.
// With an importer it also offers importing a stored object by key.
func (h *ArchiveHandler) BuildForm(ctx context.Context, resourceID, projectID string) (*FormResponse, error) {
	asset, err := h.tree.LookupAsset(ctx, resourceID)
	if err != nil {
		return nil, lookupError("lookup_asset", resourceID, err)
	}
	project, err := h.tree.LookupProject(ctx, projectID)
	if err != nil {
		return nil, lookupError("lookup_project", projectID, err)
	}

	var folder *domain.AssetNode
	if asset.ParentID != "" {
		folder, err = h.tree.LookupAsset(ctx, asset.ParentID)
		if err != nil {
			log.Warn().Err(err).Str("parent_id", asset.ParentID).Msg("parent folder lookup failed, omitting from form")
			folder = nil
		}
	}

	resources := []FormOption{
		{
			Name:  fmt.Sprintf("📓: %s - %s", project.Name, domain.FormatBytes(project.StorageBytes, domain.FormatSize)),
			Value: project.ID,
		},
		{
			Name:  fmt.Sprintf("🎞️: %s - %s", asset.Name, domain.FormatBytes(asset.SizeBytes, domain.FormatSize)),
			Value: asset.ID,
		},
	}
	if folder != nil && folder.Name != "root" {
		resources = append(resources, FormOption{
			Name:  fmt.Sprintf("📁: %s - %s", folder.Name, domain.FormatBytes(folder.SizeBytes, domain.FormatSize)),
			Value: folder.ID,
		})
	}

	description := fmt.Sprintf("The %s project contains: \n - %s Folders\n - %s Assets",
		project.Name, humanize.Comma(int64(project.FolderCount)), humanize.Comma(int64(project.FileCount)))
	if folder != nil {
		description += fmt.Sprintf(" \n\nThe parent folder %s contains: \n - %s items", folder.Name, humanize.Comma(int64(folder.ItemCount)))
	}

	fields := []FormField{
		{Type: "select", Label: "Destination?", Name: "destination", Options: h.destinationOptions()},
		{Type: "select", Label: "What would you like to archive?", Name: "resource_id", Options: resources},
	}
	if h.importer != nil {
		copyType := FormField{Type: "select", Label: "Export or import?", Name: "copytype", Options: []FormOption{
			{Name: "Export to storage", Value: CopyExport},
			{Name: "Import from storage", Value: CopyImport},
		}}
		objectKey := FormField{Type: "text", Label: "Object key to import (single file)", Name: "object_key"}
		fields = append([]FormField{copyType}, append(fields, objectKey)...)
		description += fmt.Sprintf(" \n\nImports land in the %s folder.", h.importer.FolderName())
	}

	return &FormResponse{
		Title:       formTitle,
		Description: description,
		Fields:      fields,
	}, nil
}

func (h *ArchiveHandler) destinationOptions() []FormOption {
	var options []FormOption
	for _, name := range h.jobs.DestinationNames() {
		bucket, err := h.jobs.Bucket(name)
		if err != nil {
			continue
		}
		options = append(options, FormOption{Name: fmt.Sprintf("%s: %s", name, bucket), Value: name})
	}
	if len(options) == 0 {
		if bucket, err := h.jobs.Bucket(""); err == nil {
			options = append(options, FormOption{Name: bucket, Value: bucket})
		}
	}
	return options
}

// GetJob returns the report of an archive job.
func (h *ArchiveHandler) GetJob(c *gin.Context) {
	report, err := h.jobs.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// CancelJob stops a running archive job.
func (h *ArchiveHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	if h.jobs.Cancel(id) {
		c.JSON(http.StatusAccepted, gin.H{"job_id": id, "status": "cancelling"})
		return
	}

	report, err := h.jobs.Report(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusConflict, gin.H{"job_id": id, "status": report.Status, "error": "job is not running"})
}

func lookupError(op, id string, err error) error {
	var archiveErr *domain.ArchiveError
	if errors.As(err, &archiveErr) {
		return err
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewNotFound(op, id, err)
	}
	return domain.NewTransientFetch(op, id, err)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var archiveErr *domain.ArchiveError
	switch {
	case errors.As(err, &archiveErr):
		status = archiveErr.StatusCode()
	case errors.Is(err, archive.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
