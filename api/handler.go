package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/facturaIA/einvoice-readiness-service/internal/db"
	"github.com/facturaIA/einvoice-readiness-service/internal/ingest"
	"github.com/facturaIA/einvoice-readiness-service/internal/models"
	"github.com/facturaIA/einvoice-readiness-service/internal/services"
	"github.com/facturaIA/einvoice-readiness-service/internal/storage"
)

const (
	Version = "1.0.0"

	defaultRecentLimit = 10
)

// requestValidate checks decoded request bodies; errors name fields by their JSON key
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	requestValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// UploadRequest is the JSON form of POST /api/upload
type UploadRequest struct {
	Text    string `json:"text" validate:"required"`
	Format  string `json:"format,omitempty" validate:"omitempty,oneof=csv json"`
	Country string `json:"country,omitempty" validate:"omitempty,max=64"`
	ERP     string `json:"erp,omitempty" validate:"omitempty,max=128"`
}

// AnalyzeRequest is the body of POST /api/analyze
type AnalyzeRequest struct {
	UploadID      string                `json:"uploadId" validate:"required,uuid"`
	Questionnaire *models.Questionnaire `json:"questionnaire" validate:"required"`
}

// InlineAnalyzeRequest is the body of POST /api/analyze/inline
type InlineAnalyzeRequest struct {
	UploadRequest
	Questionnaire models.Questionnaire `json:"questionnaire"`
}

// Handler handles HTTP requests for readiness analysis
type Handler struct {
	config  *models.Config
	service *services.ReadinessService
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, service *services.ReadinessService) *Handler {
	return &Handler{
		config:  config,
		service: service,
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Analysis flow
	router.HandleFunc("/api/upload", h.Upload).Methods("POST")
	router.HandleFunc("/api/analyze", h.Analyze).Methods("POST")
	router.HandleFunc("/api/analyze/inline", h.AnalyzeInline).Methods("POST")

	// Reports
	router.HandleFunc("/api/report/{reportId}", h.GetReport).Methods("GET")
	router.HandleFunc("/api/reports", h.GetRecentReports).Methods("GET")

	// Canonical schema
	router.HandleFunc("/api/schema", h.GetSchema).Methods("GET")

	// Health check and metrics
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Timestamp string        `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Memory    MemoryStats   `json:"memory"`
	Database  ServiceStatus `json:"database"`
	Storage   ServiceStatus `json:"storage"`
	Schema    SchemaStatus  `json:"schema"`
	Stats     *db.Stats     `json:"statistics,omitempty"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SchemaStatus describes the loaded canonical schema
type SchemaStatus struct {
	Version string `json:"version"`
	Fields  int    `json:"fields"`
}

var startTime = time.Now()

// Health endpoint. Persistence is optional, so a missing database only degrades the status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	registry := h.service.Analyzer().Registry()
	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Database: h.checkDatabase(),
		Storage:  h.checkStorage(),
		Schema:   SchemaStatus{Version: registry.Version(), Fields: registry.Len()},
	}

	if response.Database.Available {
		stats, err := db.GetStats(r.Context())
		if err != nil {
			log.Printf("Warning: failed to read database statistics: %v", err)
		} else {
			response.Stats = stats
		}
	} else {
		response.Status = "degraded"
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// checkDatabase verifies PostgreSQL connection
func (h *Handler) checkDatabase() ServiceStatus {
	if !db.Available() {
		return ServiceStatus{
			Available: false,
			Error:     "database pool not initialized",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   "PostgreSQL",
	}
}

// checkStorage verifies MinIO connection
func (h *Handler) checkStorage() ServiceStatus {
	if !storage.Available() {
		return ServiceStatus{
			Available: false,
			Error:     "storage client not initialized",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   "MinIO S3",
	}
}

// Upload accepts a multipart "file" or a JSON body with the payload in "text"
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	data, format, uc, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.service.Upload(r.Context(), data, format, uc)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// readUpload extracts the payload, its format and context from either request shape
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, ingest.Format, models.UploadContext, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.config.MaxUploadBytes); err != nil {
			h.sendError(w, http.StatusBadRequest, "File too large or invalid form data")
			return nil, "", models.UploadContext{}, false
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "No file provided (use 'file' field)")
			return nil, "", models.UploadContext{}, false
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			h.sendError(w, http.StatusInternalServerError, "Failed to read file")
			return nil, "", models.UploadContext{}, false
		}

		format, err := ingest.ParseFormat(r.FormValue("format"))
		if err != nil {
			h.sendError(w, http.StatusBadRequest, err.Error())
			return nil, "", models.UploadContext{}, false
		}
		if format == "" {
			format = formatFromFile(header.Filename, header.Header.Get("Content-Type"))
		}

		uc := models.UploadContext{Country: r.FormValue("country"), ERP: r.FormValue("erp")}
		if err := requestValidate.Struct(uc); err != nil {
			h.sendValidationError(w, err)
			return nil, "", models.UploadContext{}, false
		}
		return data, format, uc, true
	}

	var req UploadRequest
	if !h.decodeBody(w, r, &req) {
		return nil, "", models.UploadContext{}, false
	}
	format, _ := ingest.ParseFormat(req.Format)
	return []byte(req.Text), format, models.UploadContext{Country: req.Country, ERP: req.ERP}, true
}

// formatFromFile guesses the format from the file name or part content type; empty means auto-detect
func formatFromFile(filename, contentType string) ingest.Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return ingest.FormatJSON
	case ".csv":
		return ingest.FormatCSV
	}
	if strings.Contains(contentType, "json") {
		return ingest.FormatJSON
	}
	if strings.Contains(contentType, "csv") {
		return ingest.FormatCSV
	}
	return ""
}

// Analyze runs the analysis of a stored upload and stores the report
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req AnalyzeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	report, err := h.service.Analyze(r.Context(), req.UploadID, *req.Questionnaire)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(report)
}

// AnalyzeInline analyses a payload in one call without storing anything
func (h *Handler) AnalyzeInline(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	var req InlineAnalyzeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	format, _ := ingest.ParseFormat(req.Format)
	report, err := h.service.AnalyzeInline(
		[]byte(req.Text),
		format,
		models.UploadContext{Country: req.Country, ERP: req.ERP},
		req.Questionnaire,
	)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(report)
}

// GetReport returns a stored, unexpired report
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	reportID := mux.Vars(r)["reportId"]
	report, err := h.service.GetReport(r.Context(), reportID)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(report)
}

// GetRecentReports lists recent report summaries; ?limit=1..100, default 10
func (h *Handler) GetRecentReports(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	limit := defaultRecentLimit
	if param := r.URL.Query().Get("limit"); param != "" {
		n, err := strconv.Atoi(param)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "Invalid limit parameter. Must be between 1 and 100.")
			return
		}
		limit = n
	}

	reports, err := h.service.RecentReports(r.Context(), limit)
	if errors.Is(err, services.ErrInvalidLimit) {
		h.sendError(w, http.StatusBadRequest, "Invalid limit parameter. Must be between 1 and 100.")
		return
	}
	if err != nil {
		h.sendServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"reports": reports,
	})
}

// SchemaField is one row of GET /api/schema
type SchemaField struct {
	Path     string `json:"path"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Category string `json:"category"`
}

// GetSchema lists the canonical fields in declared order
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	registry := h.service.Analyzer().Registry()
	fields := make([]SchemaField, 0, registry.Len())
	for _, f := range registry.Fields() {
		fields = append(fields, SchemaField{Path: f.Path, Type: f.Type, Required: f.Required, Category: f.Category})
	}
	categories := make(map[string]float64)
	for _, c := range registry.Categories() {
		categories[c.Name] = c.Weight
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"version":    registry.Version(),
		"fields":     fields,
		"categories": categories,
	})
}

// decodeBody decodes and validates a JSON body, writing a 400 on failure
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := requestValidate.Struct(dst); err != nil {
		h.sendValidationError(w, err)
		return false
	}
	return true
}

func (h *Handler) sendValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		h.sendError(w, http.StatusBadRequest, "Missing required field: "+fe.Field())
	default:
		h.sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid field %s: failed %s", fe.Field(), fe.Tag()))
	}
}

// sendServiceError maps service errors to HTTP statuses
func (h *Handler) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrInvalidJSON),
		errors.Is(err, ingest.ErrInvalidCSV),
		errors.Is(err, ingest.ErrUnsupportedFormat):
		h.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrUploadNotFound):
		h.sendError(w, http.StatusNotFound, "Upload not found")
	case errors.Is(err, services.ErrReportNotFound):
		h.sendError(w, http.StatusNotFound, "Report not found or expired")
	case errors.Is(err, services.ErrPersistenceUnavailable):
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
	default:
		log.Printf("Error: %v", err)
		h.sendError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
