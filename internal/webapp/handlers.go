package webapp

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"
	"github.com/phillip-england/desglose/internal/breakdown"
	"github.com/phillip-england/desglose/internal/job"
	"github.com/phillip-england/desglose/internal/ledger"
	"github.com/phillip-england/desglose/internal/report"
	"github.com/phillip-england/desglose/internal/sheet"
	"go.uber.org/zap"
)

const (
	uploadField   = "sheet_file"
	recentRuns    = 10
	maxListedRuns = 200
)

var errUpload = errors.New("invalid upload")

var allowedExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xls":  true,
	".csv":  true,
	".txt":  true,
	".xz":   true,
}

//go:embed templates/index.html
var templatesFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

type server struct {
	runner    *job.Runner
	runs      RunStore
	logger    *zap.Logger
	maxUpload int64
}

type indexPage struct {
	CSRFField   template.HTML
	Error       string
	MaxUploadMB int64
	Policy      breakdown.Policy
	Runs        []ledger.Run
}

type auditResponse struct {
	RunID  string                  `json:"runId"`
	Cached bool                    `json:"cached"`
	Stats  breakdown.Stats         `json:"stats"`
	Excess []breakdown.ExcessEntry `json:"excess"`
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) index(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, r, http.StatusOK, "")
}

func (s *server) renderIndex(w http.ResponseWriter, r *http.Request, status int, message string) {
	page := indexPage{
		CSRFField:   csrf.TemplateField(r),
		Error:       message,
		MaxUploadMB: s.maxUpload >> 20,
		Policy:      s.runner.Policy,
	}
	if s.runs != nil {
		runs, err := s.runs.List(r.Context(), recentRuns)
		if err != nil {
			s.logger.Warn("list recent runs", zap.Error(err))
		}
		page.Runs = runs
	}

	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, page); err != nil {
		s.logger.Error("render index", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *server) processForm(w http.ResponseWriter, r *http.Request) {
	out, err := s.process(w, r)
	if err != nil {
		s.renderIndex(w, r, statusFor(err), err.Error())
		return
	}
	writeWorkbook(w, out)
}

func (s *server) processAPI(w http.ResponseWriter, r *http.Request) {
	out, err := s.process(w, r)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeWorkbook(w, out)
}

func (s *server) audit(w http.ResponseWriter, r *http.Request) {
	out, err := s.process(w, r)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	excess := out.Result.Excess
	if excess == nil {
		excess = []breakdown.ExcessEntry{}
	}
	writeJSON(w, http.StatusOK, auditResponse{
		RunID:  out.RunID,
		Cached: out.Cached,
		Stats:  out.Result.Stats,
		Excess: excess,
	})
}

func (s *server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListedRuns)
	}
	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "unable to list runs")
		return
	}
	if runs == nil {
		runs = []ledger.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "unable to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *server) process(w http.ResponseWriter, r *http.Request) (*job.Output, error) {
	data, filename, err := s.readUpload(w, r)
	if err != nil {
		return nil, err
	}
	out, err := s.runner.Run(r.Context(), filename, data)
	if err != nil {
		s.logger.Info("upload rejected", zap.String("file", filename), zap.Error(err))
		return nil, err
	}
	return out, nil
}

func (s *server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+(2<<20))
	if err := r.ParseMultipartForm(s.maxUpload + (2 << 20)); err != nil {
		return nil, "", fmt.Errorf("%w: expected a multipart form no larger than %d MB", errUpload, s.maxUpload>>20)
	}
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s file is required", errUpload, uploadField)
	}
	defer file.Close()

	filename := filepath.Base(strings.TrimSpace(header.Filename))
	if !allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		return nil, "", fmt.Errorf("%w: unsupported file type %q", errUpload, filepath.Ext(filename))
	}
	data, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: unable to read uploaded file", errUpload)
	}
	if int64(len(data)) > s.maxUpload {
		return nil, "", fmt.Errorf("%w: file exceeds %d MB", errUpload, s.maxUpload>>20)
	}
	return data, filename, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, breakdown.ErrHeaderNotFound), errors.Is(err, breakdown.ErrMissingTargetColumns):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errUpload), errors.Is(err, sheet.ErrEmpty), errors.Is(err, sheet.ErrUnreadable):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeWorkbook(w http.ResponseWriter, out *job.Output) {
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Report)))
	w.Header().Set("X-Desglose-Run", out.RunID)
	w.Header().Set("X-Desglose-Excess", strconv.Itoa(len(out.Result.Excess)))
	w.Header().Set("X-Desglose-Cached", strconv.FormatBool(out.Cached))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Report)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
