package expense

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// maxUploadSize fits high-resolution phone photos
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// serviceError maps service errors to status codes
func serviceError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		jsonError(w, "Expense not found", http.StatusNotFound)
	case errors.Is(err, ErrUnknownAccount):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("Error "+action, "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func filterFromQuery(r *http.Request) Filter {
	q := r.URL.Query()
	return Filter{
		Month:    q.Get("month"),
		Vendor:   q.Get("vendor"),
		Label:    q.Get("label"),
		Currency: q.Get("currency"),
		Status:   Status(q.Get("status")),
	}
}

// handleListExpenses returns the records matching the query filter
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.service.List(filterFromQuery(r))
	if err != nil {
		serviceError(w, "listing expenses", err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

// handleUploadExpense stores an uploaded document in the inbox and processes it
func (s *Server) handleUploadExpense(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "File is too large. Maximum size is 50MB.", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	outcome, err := s.service.Ingest(r.Context(), header.Filename, data, ProcessOptions{BaseDir: s.inboxDir})
	if err != nil {
		slog.Error("Error processing upload", "filename", header.Filename, "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch outcome.Result {
	case ResultProcessed:
		writeJSON(w, http.StatusCreated, outcome.Expense)
	case ResultSkipped:
		writeJSON(w, http.StatusOK, outcome.Expense)
	default:
		jsonError(w, fmt.Sprintf("Could not extract %s, it was kept for manual review", header.Filename), http.StatusUnprocessableEntity)
	}
}

// handleGetExpense returns a single record
func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := s.service.Get(r.PathValue("id"))
	if err != nil {
		serviceError(w, "getting expense", err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// handleGetExpenseFile returns the document of a record
func (s *Server) handleGetExpenseFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetFile(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			jsonError(w, "Expense not found", http.StatusNotFound)
			return
		}
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteExpense deletes the records matching an id prefix
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.PathValue("id")); err != nil {
		serviceError(w, "deleting expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddLabels(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Labels []string `json:"labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Labels) == 0 {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	expense, err := s.service.AddLabels(r.PathValue("id"), req.Labels...)
	if err != nil {
		serviceError(w, "adding labels", err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Note == "" {
		jsonError(w, "Note is empty", http.StatusBadRequest)
		return
	}

	expense, err := s.service.AddNote(r.PathValue("id"), req.Note)
	if err != nil {
		serviceError(w, "adding note", err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account int `json:"account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	expense, err := s.service.Categorize(r.PathValue("id"), req.Account)
	if err != nil {
		serviceError(w, "categorizing expense", err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	expense, err := s.service.Verify(r.PathValue("id"))
	if err != nil {
		serviceError(w, "verifying expense", err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Summary(filterFromQuery(r))
	if err != nil {
		serviceError(w, "building summary", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleVATReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.VAT(filterFromQuery(r))
	if err != nil {
		serviceError(w, "building VAT report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleExport streams CSV or XLSX, chosen by the format query parameter
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := Format(r.URL.Query().Get("format"))
	var contentType, ext string
	switch format {
	case FormatCSV, "":
		format, contentType, ext = FormatCSV, "text/csv; charset=utf-8", "csv"
	case FormatXLSX:
		contentType, ext = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"
	default:
		jsonError(w, fmt.Sprintf("Unsupported format %q", format), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="expenses.%s"`, ext))
	if _, err := s.service.Export(w, filterFromQuery(r), format); err != nil {
		// Headers are gone once the body started, log only
		slog.Error("Error exporting expenses", "error", err)
	}
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Accounts())
}

func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := s.service.Failures()
	if err != nil {
		serviceError(w, "listing failures", err)
		return
	}
	writeJSON(w, http.StatusOK, failures)
}
