package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError maps a pipeline error to a status code and a JSON body
func writeError(w http.ResponseWriter, err error) {
	setCORSHeaders(w)
	writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
}

// statusForError maps the pipeline error taxonomy to HTTP statuses.
func statusForError(err error) int {
	var (
		netErr      *NetworkError
		timeoutErr  *TimeoutError
		malformed   *MalformedReplyError
		schemaError *SchemaMismatchError
	)
	switch {
	case errors.Is(err, ErrCaptureCanceled), errors.Is(err, ErrPermissionDenied):
		return http.StatusBadRequest
	case errors.Is(err, ErrCaptureInProgress), errors.Is(err, ErrCaptureSuperseded),
		errors.Is(err, ErrNothingToSettle):
		return http.StatusConflict
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout
	case errors.As(err, &malformed), errors.As(err, &schemaError):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrEmptyReply), errors.As(err, &netErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// sessionView is the JSON shape of GET /api/session
type sessionView struct {
	State   string   `json:"state"`
	Receipt *Receipt `json:"receipt,omitempty"`
	Total   string   `json:"total"`
}

func (s *Server) sessionView() sessionView {
	return sessionView{
		State:   s.session.State().String(),
		Receipt: s.session.CurrentReceipt(),
		Total:   FormatAmount(s.session.Total()),
	}
}

// handleCapture runs one image through the OCR and extraction pipeline
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	// Max 50MB to handle high-resolution phone photos
	maxFormSize := int64(50 << 20)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		setCORSHeaders(w)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Error parsing form"})
		return
	}

	f, header, err := r.FormFile("image")
	if err != nil {
		slog.Error("Error getting image from form", "error", err)
		setCORSHeaders(w)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No image provided"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading image data", "error", err, "filename", header.Filename)
		setCORSHeaders(w)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Error reading image"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeForExt(header.Filename)
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	receipt, err := s.session.Process(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error processing capture", "filename", header.Filename, "error", err)
		writeError(w, err)
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusCreated, receipt)
}

// contentTypeForExt guesses a MIME type from the capture's extension
func contentTypeForExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleDeclineCapture records a capture that produced no image (picker
// dismissed, or camera permission denied)
func (s *Server) handleDeclineCapture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PermissionDenied bool `json:"permission_denied"`
	}
	if r.Body != nil {
		// An empty body means a plain cancellation
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	err := s.session.Decline(req.PermissionDenied)
	slog.Info("Capture declined", "reason", err)
	writeError(w, err)
}

// handleGetSession returns the pipeline state and the receipt under review
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, s.sessionView())
}

// handleResetSession abandons the current review
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	s.session.Reset()
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// itemIndex parses the {index} path segment. ok is false when the segment
// is not a number at all; out-of-range numbers are left for the session's
// tolerant no-op handling.
func itemIndex(r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return 0, false
	}
	return index, true
}

// handleEditItem replaces the name and total price of one reviewed item
func (s *Server) handleEditItem(w http.ResponseWriter, r *http.Request) {
	index, ok := itemIndex(r)
	if !ok {
		corsError(w, "Invalid item index", http.StatusBadRequest)
		return
	}

	var req struct {
		Name       string `json:"name"`
		TotalPrice string `json:"total_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.session.EditItem(index, req.Name, req.TotalPrice)

	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, s.sessionView())
}

// handleRemoveItem removes one reviewed item
func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	index, ok := itemIndex(r)
	if !ok {
		corsError(w, "Invalid item index", http.StatusBadRequest)
		return
	}

	s.session.RemoveItem(index)

	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, s.sessionView())
}

// handleSettle folds the reviewed total into the expense history
func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	settlement, share, err := s.session.Settle()
	if err != nil {
		writeError(w, err)
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusCreated, map[string]any{
		"settlement":   settlement,
		"share":        share,
		"participants": s.session.Participants(),
	})
}

// handleListExpenses returns the settlement history
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses := s.session.Expenses()
	// Ensure we always return an array, not nil
	if expenses == nil {
		expenses = []Settlement{}
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, expenses)
}
