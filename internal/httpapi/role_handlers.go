package httpapi

import (
	"net/http"

	"kinoauth.org/internal/auth"
)

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) handleRoleCreate(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	role, err := a.roles.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"role": role})
}

func (a *API) handleRoleList(w http.ResponseWriter, r *http.Request) {
	roles, err := a.roles.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleRoleGet(w http.ResponseWriter, r *http.Request) {
	role, err := a.roles.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"role": role})
}

type roleUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (a *API) handleRoleUpdate(w http.ResponseWriter, r *http.Request) {
	var req roleUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	role, err := a.roles.Update(r.Context(), r.PathValue("id"), auth.RoleUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"role": role})
}

func (a *API) handleRoleDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.roles.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handleRoleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if err := a.roles.Assign(r.Context(), r.PathValue("id"), req.RoleID); err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

func (a *API) handleRoleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := a.roles.Revoke(r.Context(), r.PathValue("id"), r.PathValue("roleID")); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
