package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/villacare/planning-engine/factory"
	"github.com/villacare/planning-engine/planning"
)

// maxTemplateBody bounds template uploads.
const maxTemplateBody = 1 << 20

// =============================================================================
// VILLAS
// =============================================================================

// ListVillas returns all villas.
func (h *Handler) ListVillas(w http.ResponseWriter, r *http.Request) {
	villas, err := h.Planning.ListVillas(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list villas", err)
		return
	}

	dtos := make([]VillaDTO, 0, len(villas))
	for _, v := range villas {
		dtos = append(dtos, toVillaDTO(v))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateVilla registers a villa.
func (h *Handler) CreateVilla(w http.ResponseWriter, r *http.Request) {
	var req CreateVillaRequest
	if !h.decode(w, r, &req) {
		return
	}

	v, err := h.Planning.CreateVilla(r.Context(), planning.NewVilla{
		Name:                req.Name,
		Color:               req.Color,
		IsReinforcementPool: req.IsReinforcementPool,
		DefaultTemplateID:   req.DefaultTemplateID,
	})
	if err != nil {
		h.fail(w, r, "Failed to create villa", err)
		return
	}
	writeJSON(w, http.StatusCreated, toVillaDTO(*v))
}

// DeleteVilla removes a villa that owns no shifts and no users.
func (h *Handler) DeleteVilla(w http.ResponseWriter, r *http.Request) {
	if err := h.Planning.DeleteVilla(r.Context(), chi.URLParam(r, "villaId")); err != nil {
		h.fail(w, r, "Failed to delete villa", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// USERS
// =============================================================================

// ListUsers returns all users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Planning.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, 0, len(users))
	for _, u := range users {
		dtos = append(dtos, toUserDTO(u))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUser returns one user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Planning.GetUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, r, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

// CreateUser registers a user.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	u, err := h.Planning.CreateUser(r.Context(), planning.NewUser{
		Name:    req.Name,
		Email:   req.Email,
		Roles:   req.Roles,
		VillaID: req.VillaID,
		Color:   req.Color,
	})
	if err != nil {
		h.fail(w, r, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(*u))
}

// =============================================================================
// TEMPLATES
// =============================================================================

// ListTemplates returns all templates as documents.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Planning.Store().ListTemplates(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list templates", err)
		return
	}

	dtos := make([]TemplateDTO, 0, len(templates))
	for _, t := range templates {
		dtos = append(dtos, TemplateDTO{TemplateDocument: factory.ToDocument(t), CreatedAt: t.CreatedAt})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTemplate returns one template. With Accept: application/yaml the
// document is returned as YAML.
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.Planning.Store().GetTemplate(r.Context(), chi.URLParam(r, "templateId"))
	if err != nil {
		h.fail(w, r, "Failed to get template", err)
		return
	}

	if factory.FormatFromContentType(r.Header.Get("Accept")) == factory.FormatYAML {
		data, err := factory.Encode(*t, factory.FormatYAML)
		if err != nil {
			h.fail(w, r, "Failed to encode template", err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}
	writeJSON(w, http.StatusOK, TemplateDTO{TemplateDocument: factory.ToDocument(*t), CreatedAt: t.CreatedAt})
}

// CreateTemplate stores a template document, JSON by default or YAML when
// the Content-Type says so.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxTemplateBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tmpl, err := h.Templates.Parse(data, factory.FormatFromContentType(r.Header.Get("Content-Type")))
	if err != nil {
		h.fail(w, r, "Invalid template", err)
		return
	}

	created, err := h.Planning.CreateTemplate(r.Context(), *tmpl)
	if err != nil {
		h.fail(w, r, "Failed to create template", err)
		return
	}
	writeJSON(w, http.StatusCreated, TemplateDTO{TemplateDocument: factory.ToDocument(*created), CreatedAt: created.CreatedAt})
}
