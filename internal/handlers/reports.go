package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ardhptr21/myits-lapor/internal/models"
	"github.com/ardhptr21/myits-lapor/internal/response"
	"github.com/ardhptr21/myits-lapor/internal/service"
	"github.com/ardhptr21/myits-lapor/internal/upload"
)

const photosField = "photos"

type reporterResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type reportResponse struct {
	ID        string           `json:"id"`
	Reporter  reporterResponse `json:"reporter"`
	Title     string           `json:"title"`
	Location  string           `json:"location"`
	Priority  string           `json:"priority"`
	Status    string           `json:"status"`
	Photos    []string         `json:"photos"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

type progressResponse struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Photos      []string  `json:"photos"`
	CreatedAt   time.Time `json:"createdAt"`
}

type reportDetailResponse struct {
	reportResponse
	Progresses []progressResponse `json:"progresses"`
}

func toReportResponse(r models.Report) reportResponse {
	photos := r.Photos
	if photos == nil {
		photos = []string{}
	}
	return reportResponse{
		ID:        r.ID,
		Reporter:  reporterResponse{ID: r.Reporter.ID, Name: r.Reporter.Name},
		Title:     r.Title,
		Location:  r.Location,
		Priority:  string(r.Priority),
		Status:    string(r.Status),
		Photos:    photos,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func toProgressResponse(p models.Progress) progressResponse {
	photos := p.Photos
	if photos == nil {
		photos = []string{}
	}
	return progressResponse{
		ID:          p.ID,
		Description: p.Description,
		Photos:      photos,
		CreatedAt:   p.CreatedAt,
	}
}

// bindMultipart caps the body at what the upload limits allow and binds the
// text fields of the form.
func (h HandlerSet) bindMultipart(c *gin.Context, obj any) error {
	limit := int64(h.cfg.Upload.MaxFiles)*h.cfg.Upload.MaxSize + 1<<20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	if err := c.ShouldBind(obj); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return service.BadRequest("Invalid file upload", map[string]string{photosField: "File size exceeds limit"})
		}
		return err
	}
	return nil
}

type createReportRequest struct {
	Title    string `form:"title" binding:"required,min=3,max=200"`
	Location string `form:"location" binding:"required,min=3,max=200"`
	Priority string `form:"priority" binding:"required,oneof=low medium high"`
}

type createReportResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (h HandlerSet) CreateReport(c *gin.Context) {
	var req createReportRequest
	if err := h.bindMultipart(c, &req); err != nil {
		response.BindError(c, err)
		return
	}

	photos, err := h.receiver.Receive(c.Request.Context(), c.Request.MultipartForm, photosField, upload.FolderReports)
	if err != nil {
		response.Error(c, err)
		return
	}
	if len(photos) == 0 {
		response.Error(c, service.BadRequest("validation failed, check your input", map[string]string{photosField: "at least one photo is required"}))
		return
	}

	report, err := h.reportService.Create(c.Request.Context(), service.CreateReportInput{
		ReporterID: currentUser(c).ID,
		Title:      req.Title,
		Location:   req.Location,
		Priority:   models.Priority(req.Priority),
		Photos:     photos,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, "Report created", createReportResponse{ID: report.ID, Title: report.Title})
}

type listQuery struct {
	Page  *int `form:"page" binding:"omitempty,min=1"`
	Limit *int `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (q listQuery) toPage() service.Page {
	page := service.Page{Page: service.DefaultPage, Limit: service.DefaultLimit}
	if q.Page != nil {
		page.Page = *q.Page
	}
	if q.Limit != nil {
		page.Limit = *q.Limit
	}
	return page
}

func (h HandlerSet) ListReports(c *gin.Context) {
	h.listReports(c, "")
}

func (h HandlerSet) ListMyReports(c *gin.Context) {
	h.listReports(c, currentUser(c).ID)
}

func (h HandlerSet) listReports(c *gin.Context, reporterID string) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BindError(c, err)
		return
	}

	var (
		page service.ReportPage
		err  error
	)
	if reporterID == "" {
		page, err = h.reportService.List(c.Request.Context(), q.toPage())
	} else {
		page, err = h.reportService.ListByReporter(c.Request.Context(), reporterID, q.toPage())
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]reportResponse, 0, len(page.Items))
	for _, r := range page.Items {
		items = append(items, toReportResponse(r))
	}
	response.Paginated(c, "Reports fetched", items, response.Meta{Page: page.Page, Limit: page.Limit, Total: page.Total})
}

func (h HandlerSet) GetReport(c *gin.Context) {
	detail, err := h.reportService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	progresses := make([]progressResponse, 0, len(detail.Progresses))
	for _, p := range detail.Progresses {
		progresses = append(progresses, toProgressResponse(p))
	}
	response.OK(c, "Report fetched", reportDetailResponse{
		reportResponse: toReportResponse(detail.Report),
		Progresses:     progresses,
	})
}

// updateReportRequest accepts JSON or multipart. Photos can only be replaced
// by uploading new files in a multipart request.
type updateReportRequest struct {
	Title    *string `json:"title" form:"title" binding:"omitempty,min=3,max=200"`
	Location *string `json:"location" form:"location" binding:"omitempty,min=3,max=200"`
	Priority *string `json:"priority" form:"priority" binding:"omitempty,oneof=low medium high"`
}

func (r updateReportRequest) patch() models.ReportPatch {
	patch := models.ReportPatch{Title: r.Title, Location: r.Location}
	if r.Priority != nil {
		p := models.Priority(*r.Priority)
		patch.Priority = &p
	}
	return patch
}

func (h HandlerSet) UpdateReport(c *gin.Context) {
	id := c.Param("id")
	requesterID := currentUser(c).ID
	if err := h.reportService.Authorize(c.Request.Context(), id, requesterID); err != nil {
		response.Error(c, err)
		return
	}

	var req updateReportRequest
	var patch models.ReportPatch

	if isMultipart(c) {
		if err := h.bindMultipart(c, &req); err != nil {
			response.BindError(c, err)
			return
		}
		patch = req.patch()

		photos, err := h.receiver.Receive(c.Request.Context(), c.Request.MultipartForm, photosField, upload.FolderReports)
		if err != nil {
			response.Error(c, err)
			return
		}
		if len(photos) > 0 {
			patch.Photos = photos
		}
	} else {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.BindError(c, err)
			return
		}
		patch = req.patch()
	}

	if err := h.reportService.Update(c.Request.Context(), id, patch, requesterID); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Report updated", nil)
}

func (h HandlerSet) DeleteReport(c *gin.Context) {
	if err := h.reportService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "Report deleted", nil)
}

type toggleStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (h HandlerSet) ToggleStatus(c *gin.Context) {
	id := c.Param("id")
	next, err := h.reportService.ToggleStatus(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "Report status updated", toggleStatusResponse{ID: id, Status: string(next)})
}

type addProgressRequest struct {
	Description string `json:"description" form:"description" binding:"max=500"`
}

func (h HandlerSet) AddProgress(c *gin.Context) {
	var req addProgressRequest
	var photos []string

	if isMultipart(c) {
		if err := h.bindMultipart(c, &req); err != nil {
			response.BindError(c, err)
			return
		}
		var err error
		photos, err = h.receiver.Receive(c.Request.Context(), c.Request.MultipartForm, photosField, upload.FolderProgresses)
		if err != nil {
			response.Error(c, err)
			return
		}
	} else if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BindError(c, err)
		return
	}

	progress, err := h.reportService.AddProgress(c.Request.Context(), service.AddProgressInput{
		ReportID:    c.Param("id"),
		Description: req.Description,
		Photos:      photos,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, "New report progress success", toProgressResponse(progress))
}
