package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	app "github.com/trackerlabs/migrate/internal/application/migration"
	domain "github.com/trackerlabs/migrate/internal/domain/migration"
)

type MigrationHandler struct {
	start  app.StartMigration
	status app.GetMigrationStatus
	cancel app.CancelMigration
}

type startMigrationRequest struct {
	WorkspaceSlug string `json:"workspace_slug"`
	ProjectID     string `json:"project_id"`
	InitiatorID   string `json:"initiator_id"`
	Config        struct {
		Source          string `json:"source"`
		SourceProjectID string `json:"source_project_id"`
		SkipUserImport  bool   `json:"skip_user_import"`
	} `json:"config"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

func NewMigrationHandler(start app.StartMigration, status app.GetMigrationStatus, cancel app.CancelMigration) *MigrationHandler {
	return &MigrationHandler{start: start, status: status, cancel: cancel}
}

func (h *MigrationHandler) StartMigration(c echo.Context) error {
	var req startMigrationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "bad_request",
			Message: "invalid request body",
		}})
	}

	out, err := h.start.Execute(c.Request().Context(), app.StartMigrationInput{
		WorkspaceSlug: req.WorkspaceSlug,
		ProjectID:     req.ProjectID,
		InitiatorID:   req.InitiatorID,
		Config: domain.JobConfig{
			Source:          req.Config.Source,
			SourceProjectID: req.Config.SourceProjectID,
			SkipUserImport:  req.Config.SkipUserImport,
		},
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidMigrationRequest) {
			return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
				Code:    "invalid_request",
				Message: "workspace_slug, project_id, initiator_id, config.source and config.source_project_id are required",
			}})
		}
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to enqueue migration job",
		}})
	}

	return c.JSON(http.StatusAccepted, apiResponse{Data: out})
}

func (h *MigrationHandler) GetMigrationStatus(c echo.Context) error {
	out, err := h.status.Execute(c.Request().Context(), app.GetMigrationStatusInput{
		JobID: c.Param("id"),
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidJobID):
			return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
				Code:    "invalid_job_id",
				Message: "job id must be a uuid",
			}})
		case errors.Is(err, app.ErrJobNotFound):
			return c.JSON(http.StatusNotFound, apiResponse{Error: &errorBody{
				Code:    "not_found",
				Message: "migration job not found",
			}})
		default:
			return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
				Code:    "internal_error",
				Message: "failed to get migration status",
			}})
		}
	}

	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func (h *MigrationHandler) CancelMigration(c echo.Context) error {
	err := h.cancel.Execute(c.Request().Context(), app.CancelMigrationInput{
		JobID: c.Param("id"),
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidJobID):
			return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
				Code:    "invalid_job_id",
				Message: "job id must be a uuid",
			}})
		case errors.Is(err, app.ErrJobNotFound):
			return c.JSON(http.StatusNotFound, apiResponse{Error: &errorBody{
				Code:    "not_found",
				Message: "migration job not found",
			}})
		default:
			return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
				Code:    "internal_error",
				Message: "failed to cancel migration job",
			}})
		}
	}

	return c.JSON(http.StatusAccepted, apiResponse{Data: map[string]string{"status": "cancelling"}})
}
