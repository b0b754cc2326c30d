package inventory

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/zombor/freshsnap/internal/capture"
	"github.com/zombor/freshsnap/internal/recognition"
)

// maxUploadSize bounds scan uploads; high-resolution phone photos can be
// large.
const maxUploadSize = int64(50 << 20) // 50MB

// setCORSHeaders sets CORS headers on a response.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// itemView decorates an item with its derived urgency for list responses.
type itemView struct {
	Item
	DaysLeft int  `json:"days_left"`
	Urgency  Tier `json:"urgency"`
}

func viewOf(item Item, now time.Time) itemView {
	return itemView{
		Item:     item,
		DaysLeft: DaysLeft(now, item.ExpiryDate),
		Urgency:  ClassifyUrgency(now, item.ExpiryDate),
	}
}

// handleListItems returns all items, optionally filtered by ?q= and
// ?category=.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	category := CategoryAll
	if raw := r.URL.Query().Get("category"); raw != "" {
		category = Category(raw)
	}
	items := FilterItems(s.store.List(), r.URL.Query().Get("q"), category)

	now := time.Now()
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, viewOf(item, now))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleCreateItem handles manual item entry.
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var item Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if item.AddedDate.IsZero() {
		item.AddedDate = time.Now()
	}
	if item.NotifyDaysBefore == 0 {
		settings, err := s.store.LoadSettings()
		if err != nil {
			settings = DefaultSettings()
		}
		item.NotifyDaysBefore = settings.DefaultNotifyDays
	}
	if item.Icon == "" {
		item.Icon = defaultIcon(item.Category)
	}

	stored, err := s.store.Add(item)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		slog.Error("Error adding item", "error", err)
		writeError(w, http.StatusInternalServerError, "Error adding item")
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// handleGetItem returns a single item.
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(item, time.Now()))
}

// handlePatchItem merges a partial update into an item.
func (s *Server) handlePatchItem(w http.ResponseWriter, r *http.Request) {
	var patch ItemPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item, err := s.store.Update(r.PathValue("id"), patch)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "Item not found")
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Error())
		default:
			slog.Error("Error updating item", "error", err)
			writeError(w, http.StatusInternalServerError, "Error updating item")
		}
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleDeleteItem deletes an item. Deleting an unknown id succeeds so the
// operation stays idempotent.
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Remove(r.PathValue("id")); err != nil {
		slog.Error("Error deleting item", "error", err)
		writeError(w, http.StatusInternalServerError, "Error deleting item")
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleListReminders returns the reminders due now. Clients may pin the
// clock with ?now=RFC3339 to get deterministic results.
func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	if raw := r.URL.Query().Get("now"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "now must be RFC3339")
			return
		}
		now = parsed
	}

	settings, err := s.store.LoadSettings()
	if err != nil {
		settings = DefaultSettings()
	}

	due := DueReminders(s.store.List(), settings, now)
	if due == nil {
		due = []Reminder{}
	}
	writeJSON(w, http.StatusOK, due)
}

// handleGetSettings returns notification settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.LoadSettings()
	if err != nil {
		slog.Error("Error loading settings", "error", err)
		writeError(w, http.StatusInternalServerError, "Error loading settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handlePutSettings replaces notification settings.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.store.SaveSettings(settings); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		slog.Error("Error saving settings", "error", err)
		writeError(w, http.StatusInternalServerError, "Error saving settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// scanResponse describes a scan session to clients.
type scanResponse struct {
	Session uint64                  `json:"session"`
	State   PipelineState           `json:"state"`
	Items   []recognition.Candidate `json:"items"`
}

// handleCreateScan accepts an uploaded still image, runs it through the
// pipeline and returns the recognized candidates for review.
func (s *Server) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB.")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeForFilename(header.Filename)
	}

	coordinator := capture.NewBytesCoordinator(data, contentType)
	token, err := s.pipeline.Start(r.Context(), coordinator)
	if err != nil {
		slog.Error("Error starting scan", "filename", header.Filename, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	candidates, err := s.pipeline.Wait(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, ErrRecognitionFailed):
			writeError(w, http.StatusBadGateway, err.Error())
		case errors.Is(err, ErrStaleSession):
			writeError(w, http.StatusConflict, "Scan session was superseded")
		default:
			slog.Error("Error waiting for scan", "error", err)
			writeError(w, http.StatusInternalServerError, "Error processing scan")
		}
		return
	}

	if candidates == nil {
		candidates = []recognition.Candidate{}
	}
	writeJSON(w, http.StatusCreated, scanResponse{Session: token, State: s.pipeline.State(), Items: candidates})
}

// handleGetScan reports the current session state and held candidates.
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	token, candidates := s.pipeline.Candidates()
	if candidates == nil {
		candidates = []recognition.Candidate{}
	}
	writeJSON(w, http.StatusOK, scanResponse{Session: token, State: s.pipeline.State(), Items: candidates})
}

// handleConfirmScan commits the reviewed candidates as items.
func (s *Server) handleConfirmScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Session uint64                  `json:"session"`
		Items   []recognition.Candidate `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	items, err := s.pipeline.Commit(req.Session, req.Items)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.Is(err, ErrStaleSession), errors.Is(err, ErrBadState):
			writeError(w, http.StatusConflict, err.Error())
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Error())
		default:
			slog.Error("Error committing scan", "error", err)
			writeError(w, http.StatusInternalServerError, "Error committing scan")
		}
		return
	}
	writeJSON(w, http.StatusCreated, items)
}

// handleCancelScan discards the reviewed candidates or aborts an in-flight
// scan. It always leaves the pipeline idle.
func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	if s.pipeline.State() == StateReviewing {
		token, _ := s.pipeline.Candidates()
		if err := s.pipeline.Discard(token); err == nil {
			setCORSHeaders(w)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	s.pipeline.Cancel()
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

func contentTypeForFilename(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
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
