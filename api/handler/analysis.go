package handler

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyerfyer/persona-doc-analyzer/api/middleware"
	"github.com/fyerfyer/persona-doc-analyzer/api/model"
	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
	"github.com/fyerfyer/persona-doc-analyzer/internal/services"
	"github.com/fyerfyer/persona-doc-analyzer/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AnalysisHandler 处理分析相关的API请求
type AnalysisHandler struct {
	analysisService *services.AnalysisService  // 分析服务
	statusManager   *services.RunStatusManager // 运行记录
	fileStorage     storage.Storage            // 上传文件归档
	uploadDir       string                     // 上传文件的临时目录
	maxUploadSize   int64                      // 单个文件大小上限，0表示不限制
	logger          *logrus.Logger             // 日志记录器
}

// NewAnalysisHandler 创建新的分析处理器
func NewAnalysisHandler(
	analysisService *services.AnalysisService,
	statusManager *services.RunStatusManager,
	fileStorage storage.Storage,
	uploadDir string,
	maxUploadSize int64,
) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
		statusManager:   statusManager,
		fileStorage:     fileStorage,
		uploadDir:       uploadDir,
		maxUploadSize:   maxUploadSize,
		logger:          middleware.GetLogger(),
	}
}

// CreateAnalysis 上传PDF并同步执行一次分析
// POST /api/analyses
func (h *AnalysisHandler) CreateAnalysis(c *gin.Context) {
	var req model.AnalysisCreateRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid analysis request")
		middleware.HandleError(c, bindError(err, "persona, task and files are required"))
		return
	}
	req.Persona = strings.TrimSpace(req.Persona)
	req.Task = strings.TrimSpace(req.Task)
	if req.Persona == "" || req.Task == "" {
		middleware.HandleError(c, middleware.InvalidInput("persona and task must not be blank"))
		return
	}

	for _, fh := range req.Files {
		if strings.ToLower(filepath.Ext(fh.Filename)) != ".pdf" {
			middleware.HandleError(c, middleware.InvalidInput("only .pdf files are supported", fh.Filename))
			return
		}
		if h.maxUploadSize > 0 && fh.Size > h.maxUploadSize {
			middleware.HandleError(c, middleware.InvalidInput("file too large", fh.Filename))
			return
		}
	}

	runID := uuid.New().String()
	runDir := filepath.Join(h.uploadDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		middleware.HandleError(c, fmt.Errorf("prepare upload directory: %w", err))
		return
	}
	defer os.RemoveAll(runDir)

	log := h.logger.WithField(middleware.FieldRunID, runID)
	documents := make([]string, 0, len(req.Files))
	seen := make(map[string]struct{})
	for _, fh := range req.Files {
		name := filepath.Base(fh.Filename)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		path := filepath.Join(runDir, name)
		if err := c.SaveUploadedFile(fh, path); err != nil {
			log.WithError(err).WithField("filename", name).Error("Failed to save uploaded file")
			middleware.HandleError(c, fmt.Errorf("save upload %s: %w", name, err))
			return
		}
		if err := h.archiveUpload(c, runID, path); err != nil {
			log.WithError(err).WithField("filename", name).Warn("Failed to archive uploaded file")
		}
		documents = append(documents, path)
	}

	log.WithField("documents", len(documents)).Info("Files uploaded, starting analysis")

	result, err := h.analysisService.Analyze(c.Request.Context(), services.AnalysisRequest{
		RunID:     runID,
		Persona:   req.Persona,
		Task:      req.Task,
		Documents: documents,
		OutputKey: storage.RunKey(runID, h.analysisService.OutputName()),
	})
	if err != nil {
		middleware.HandleError(c, fmt.Errorf("run %s: %w", runID, err))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.AnalysisResponse{
		RunID:          result.RunID,
		Domain:         string(result.Domain),
		OutputLocation: result.OutputLocation,
		Output:         result.Output,
	}))
}

// archiveUpload 把上传的PDF保存到运行目录下
func (h *AnalysisHandler) archiveUpload(c *gin.Context, runID, path string) error {
	if h.fileStorage == nil {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	key := storage.RunKey(runID, "inputs/"+filepath.Base(path))
	_, err = h.fileStorage.Put(c.Request.Context(), key, f, info.Size(), "application/pdf")
	return err
}

// GetAnalysis 获取运行记录与输出
// GET /api/analyses/:id
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	var req model.RunRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, bindError(err, "invalid run id"))
		return
	}

	run, err := h.statusManager.GetRun(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	detail, err := model.ConvertToRunDetail(run)
	if err != nil {
		h.logger.WithError(err).WithField(middleware.FieldRunID, req.ID).Warn("Failed to decode stored output")
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(detail))
}

// ListAnalyses 分页获取运行记录
// GET /api/analyses
func (h *AnalysisHandler) ListAnalyses(c *gin.Context) {
	var req model.RunListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, bindError(err, "invalid query parameters"))
		return
	}

	runs, total, err := h.statusManager.ListRuns(c.Request.Context(), req.Offset(), req.GetPageSize(), models.RunStatus(req.Status))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	items := make([]model.RunInfo, len(runs))
	for i, run := range runs {
		items[i] = model.ConvertToRunInfo(run)
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.RunListResponse{
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Runs:     items,
	}))
}

// bindError 绑定失败时保留字段校验明细，其余解析错误归为参数错误
func bindError(err error, message string) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return err
	}
	return middleware.InvalidInput(message, err.Error())
}
