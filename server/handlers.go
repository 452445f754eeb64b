package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/status-im/credential-host/authrule"
	"github.com/status-im/credential-host/descriptor"
	"github.com/status-im/credential-host/registry"
	"github.com/status-im/credential-host/store"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type typeSummary struct {
	Name             string `json:"name"`
	DisplayName      string `json:"displayName"`
	DocumentationURL string `json:"documentationUrl,omitempty"`
	Fields           int    `json:"fields"`
}

type authView struct {
	Type    descriptor.Mode   `json:"type"`
	Headers map[string]string `json:"headers"`
}

type typeView struct {
	Name             string                 `json:"name"`
	DisplayName      string                 `json:"displayName"`
	DocumentationURL string                 `json:"documentationUrl,omitempty"`
	Properties       []descriptor.FieldView `json:"properties"`
	Authenticate     authView               `json:"authenticate"`
}

type credentialView struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
	Fields    []descriptor.FieldView `json:"fields"`
}

type createRequest struct {
	Type string `json:"type"`
}

type checkResponse struct {
	Ready   bool     `json:"ready"`
	Headers []string `json:"headers,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
	Types  int    `json:"types"`
	Error  string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeStoreError maps store and descriptor errors onto status codes
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	var (
		mismatch *descriptor.KindMismatchError
		unknown  *descriptor.UnknownFieldError
		invalid  *descriptor.InvalidValueError
	)

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &mismatch), errors.As(err, &unknown), errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.Error("Credential store failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func newTypeView(d *descriptor.Descriptor) typeView {
	headers := make(map[string]string, len(d.Auth.Headers))
	for name, tmpl := range d.Auth.Headers {
		headers[name] = tmpl.String()
	}
	return typeView{
		Name:             d.Name,
		DisplayName:      d.DisplayName,
		DocumentationURL: d.DocumentationURL,
		Properties:       descriptor.FieldViews(d, nil),
		Authenticate: authView{
			Type:    d.Auth.Mode,
			Headers: headers,
		},
	}
}

func newCredentialView(d *descriptor.Descriptor, cred *store.Credential) credentialView {
	return credentialView{
		ID:        cred.ID,
		Type:      cred.Type,
		CreatedAt: cred.CreatedAt,
		UpdatedAt: cred.UpdatedAt,
		Fields:    descriptor.FieldViews(d, cred.Values),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Types: len(s.types.List())}
	for _, p := range s.health {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("Health check failed", "error", err)
			resp.Status = "unavailable"
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	types := s.types.List()
	out := make([]typeSummary, 0, len(types))
	for _, d := range types {
		out = append(out, typeSummary{
			Name:             d.Name,
			DisplayName:      d.DisplayName,
			DocumentationURL: d.DocumentationURL,
			Fields:           len(d.Fields),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetType(w http.ResponseWriter, r *http.Request) {
	d, err := s.types.Get(chi.URLParam(r, "name"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTypeView(d))
}

func (s *Server) handleTypeFields(w http.ResponseWriter, r *http.Request) {
	d, err := s.types.Get(chi.URLParam(r, "name"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, descriptor.FieldViews(d, nil))
}

func (s *Server) handleCreateCredential(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	d, err := s.types.Get(req.Type)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	cred, err := s.creds.Create(r.Context(), d.Name)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.Info("Credential created via API", "id", cred.ID, "type", cred.Type, "actor", subject(r.Context()))
	w.Header().Set("Location", "/v1/credentials/"+cred.ID)
	writeJSON(w, http.StatusCreated, newCredentialView(d, cred))
}

// loadCredential fetches the credential and its descriptor, writing the error
// response on failure. latest skips the local tier.
func (s *Server) loadCredential(w http.ResponseWriter, r *http.Request, latest bool) (*store.Credential, *descriptor.Descriptor, bool) {
	get := s.creds.Get
	if latest {
		get = s.creds.Load
	}

	cred, err := get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return nil, nil, false
	}
	d, err := s.types.Get(cred.Type)
	if err != nil {
		s.writeStoreError(w, fmt.Errorf("credential %q: %w", cred.ID, err))
		return nil, nil, false
	}
	return cred, d, true
}

func (s *Server) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	cred, d, ok := s.loadCredential(w, r, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newCredentialView(d, cred))
}

func (s *Server) handleUpdateCredential(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var changes map[string]any
	if err := dec.Decode(&changes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: expected an object of field values")
		return
	}

	id := chi.URLParam(r, "id")
	cred, err := s.creds.Update(r.Context(), id, changes)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	d, err := s.types.Get(cred.Type)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.Info("Credential updated via API", "id", id, "fields", len(changes), "actor", subject(r.Context()))
	writeJSON(w, http.StatusOK, newCredentialView(d, cred))
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.creds.Delete(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	if s.limits != nil {
		s.limits.Forget(id)
	}

	s.logger.Info("Credential deleted via API", "id", id, "actor", subject(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// handleCheckCredential reports whether every header of the credential's auth
// rule can be rendered. Header values are never returned.
func (s *Server) handleCheckCredential(w http.ResponseWriter, r *http.Request) {
	cred, d, ok := s.loadCredential(w, r, true)
	if !ok {
		return
	}

	headers, err := authrule.ApplyDescriptor(d, cred.Values)
	if err != nil {
		status := "error"
		var missing *descriptor.MissingFieldError
		if errors.As(err, &missing) {
			status = "missing_field"
		}
		s.metrics.RecordApply(d.Name, status)
		writeJSON(w, http.StatusConflict, checkResponse{Ready: false, Error: err.Error()})
		return
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	s.metrics.RecordApply(d.Name, "success")
	writeJSON(w, http.StatusOK, checkResponse{Ready: true, Headers: names})
}
