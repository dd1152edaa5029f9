package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/TheKaroKaro/IDExpatsInMY/internal/models"
	"github.com/TheKaroKaro/IDExpatsInMY/internal/store"
)

// Admin is the moderation actor's surface: it performs the
// Pending -> Approved/Rejected transitions the public endpoints never expose.
type Admin struct {
	store         *store.Client
	tables        map[string]string // content type -> table
	articlesTable string
	password      string
	jwtSecret     []byte
}

func NewAdmin(st *store.Client, tables map[string]string, articlesTable, password, jwtSecret string) *Admin {
	return &Admin{
		store:         st,
		tables:        tables,
		articlesTable: articlesTable,
		password:      password,
		jwtSecret:     []byte(jwtSecret),
	}
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (h *Admin) Login(w http.ResponseWriter, r *http.Request) {
	if h.password == "" || len(h.jwtSecret) == 0 {
		respondError(w, http.StatusInternalServerError, "admin auth not configured")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.password)) != 1 {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString(h.jwtSecret)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "token error")
		return
	}
	respondJSON(w, http.StatusOK, loginResponse{Token: tokenString})
}

// Pending lists records awaiting moderation for one content type.
func (h *Admin) Pending(w http.ResponseWriter, r *http.Request) {
	table, ok := h.tables[r.URL.Query().Get("type")]
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown content type")
		return
	}

	records, err := h.store.List(r.Context(), table, store.ListOptions{
		Filter:     "Status='Pending'",
		MaxRecords: parsePositiveInt(r.URL.Query().Get("limit"), 50),
		Sort:       []store.SortField{{Field: "CreatedAt", Direction: "desc"}},
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": records})
}

type moderateRequest struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Moderate flips one record from Pending to Approved or Rejected.
func (h *Admin) Moderate(w http.ResponseWriter, r *http.Request) {
	var req moderateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	table, ok := h.tables[req.Type]
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown content type")
		return
	}
	if req.ID == "" || (req.Status != models.StatusApproved && req.Status != models.StatusRejected) {
		respondError(w, http.StatusBadRequest, "id and a status of Approved or Rejected are required")
		return
	}

	updated, err := h.store.Update(r.Context(), table, []store.RecordUpdate{{
		ID:     req.ID,
		Fields: store.Fields{"Status": req.Status},
	}})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "record": updated[0]})
}

type featureRequest struct {
	ID string `json:"id"`
}

// Feature makes one article the featured one, clearing the flag everywhere
// else first. Best-effort under concurrent admin actions.
func (h *Admin) Feature(w http.ResponseWriter, r *http.Request) {
	var req featureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ID == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := clearFeatured(r.Context(), h.store, h.articlesTable); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	updated, err := h.store.Update(r.Context(), h.articlesTable, []store.RecordUpdate{{
		ID:     req.ID,
		Fields: store.Fields{"Featured": true},
	}})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "record": updated[0]})
}
