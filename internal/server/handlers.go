package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/bekutoru/internal/apperr"
	"github.com/hyperjump/bekutoru/internal/models"
)

func (s *Server) handleCreateLibrary(w http.ResponseWriter, r *http.Request) {
	var req models.LibraryCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lib, err := s.svc.CreateLibrary(r.Context(), req.Name, req.IndexKind, req.IndexParams, req.Metadata)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, models.NewLibraryResponse(lib))
}

func (s *Server) handleListLibraries(w http.ResponseWriter, r *http.Request) {
	libs, err := s.svc.ListLibraries(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	out := make([]*models.LibraryResponse, 0, len(libs))
	for _, lib := range libs {
		out = append(out, models.NewLibraryResponse(lib))
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetLibrary(w http.ResponseWriter, r *http.Request) {
	libID, ok := s.pathID(w, r, "libraryID")
	if !ok {
		return
	}
	lib, err := s.svc.GetLibrary(r.Context(), libID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.NewLibraryResponse(lib))
}

func (s *Server) handleUpdateLibrary(w http.ResponseWriter, r *http.Request) {
	libID, ok := s.pathID(w, r, "libraryID")
	if !ok {
		return
	}
	var req models.LibraryUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lib, err := s.svc.UpdateLibrary(r.Context(), libID, req.Name, req.Metadata)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.NewLibraryResponse(lib))
}

func (s *Server) handleDeleteLibrary(w http.ResponseWriter, r *http.Request) {
	libID, ok := s.pathID(w, r, "libraryID")
	if !ok {
		return
	}
	if err := s.svc.DeleteLibrary(r.Context(), libID); err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	libID, ok := s.pathID(w, r, "libraryID")
	if !ok {
		return
	}
	var req models.DocumentCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	doc, err := s.svc.CreateDocument(r.Context(), libID, req.Metadata)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, models.NewDocumentResponse(doc))
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	libID, ok := s.pathID(w, r, "libraryID")
	if !ok {
		return
	}
	docID, ok := s.pathID(w, r, "documentID")
	if !ok {
		return
	}
	doc, err := s.svc.GetDocument(r.Context(), libID, docID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.NewDocumentResponse(doc))
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	libID, ok := s.pathID(w, r, "libraryID")
	if !ok {
		return
	}
	docID, ok := s.pathID(w, r, "documentID")
	if !ok {
		return
	}
	var req models.DocumentUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	doc, err := s.svc.UpdateDocumentMetadata(r.Context(), libID, docID, req.Metadata)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.NewDocumentResponse(doc))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	libID, ok := s.pathID(w, r, "libraryID")
	if !ok {
		return
	}
	docID, ok := s.pathID(w, r, "documentID")
	if !ok {
		return
	}
	if err := s.svc.DeleteDocument(r.Context(), libID, docID); err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCreateChunk(w http.ResponseWriter, r *http.Request) {
	libID, ok := s.pathID(w, r, "libraryID")
	if !ok {
		return
	}
	var req models.ChunkCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	chunk, err := s.svc.CreateChunk(r.Context(), libID, &req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, models.NewChunkResponse(chunk))
}

func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	libID, ok := s.pathID(w, r, "libraryID")
	if !ok {
		return
	}
	chunkID, ok := s.pathID(w, r, "chunkID")
	if !ok {
		return
	}
	chunk, err := s.svc.GetChunk(r.Context(), libID, chunkID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.NewChunkResponse(chunk))
}

func (s *Server) handleUpdateChunk(w http.ResponseWriter, r *http.Request) {
	libID, ok := s.pathID(w, r, "libraryID")
	if !ok {
		return
	}
	chunkID, ok := s.pathID(w, r, "chunkID")
	if !ok {
		return
	}
	var req models.ChunkUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	chunk, err := s.svc.UpdateChunk(r.Context(), libID, chunkID, &req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.NewChunkResponse(chunk))
}

func (s *Server) handleDeleteChunk(w http.ResponseWriter, r *http.Request) {
	libID, ok := s.pathID(w, r, "libraryID")
	if !ok {
		return
	}
	chunkID, ok := s.pathID(w, r, "chunkID")
	if !ok {
		return
	}
	if err := s.svc.DeleteChunk(r.Context(), libID, chunkID); err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleBuildIndex(w http.ResponseWriter, r *http.Request) {
	libID, ok := s.pathID(w, r, "libraryID")
	if !ok {
		return
	}
	resp, err := s.svc.BuildIndex(r.Context(), libID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	libID, ok := s.pathID(w, r, "libraryID")
	if !ok {
		return
	}
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request",
		zap.String("library_id", libID.String()),
		zap.String("query", req.Query),
		zap.Int("k", req.K))
	resp, err := s.svc.Search(r.Context(), libID, &req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	libraries, documents, chunks, err := s.svc.Counts(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"libraries": libraries,
		"documents": documents,
		"chunks":    chunks,
		"config": map[string]any{
			"storage_backend":    s.config.Storage.Backend,
			"embedding_provider": s.config.Embedding.Provider,
			"embedding_model":    s.config.Embedding.Model,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathID parses a uuid URL parameter, responding 400 on malformed ids.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
