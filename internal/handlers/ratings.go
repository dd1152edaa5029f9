package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/TheKaroKaro/IDExpatsInMY/internal/middleware"
	"github.com/TheKaroKaro/IDExpatsInMY/internal/models"
	"github.com/TheKaroKaro/IDExpatsInMY/internal/store"
	"github.com/TheKaroKaro/IDExpatsInMY/internal/turnstile"
)

const (
	ratingsSubmitLimit  = 30
	ratingsRecomputeMax = 500
)

// Ratings accepts star ratings and maintains the parent listing's aggregate.
type Ratings struct {
	store        *store.Client
	limiter      middleware.Limiter
	verifier     *turnstile.Verifier
	ratingsTable string
	parentTable  string
}

func NewRatings(st *store.Client, limiter middleware.Limiter, verifier *turnstile.Verifier, ratingsTable, parentTable string) *Ratings {
	return &Ratings{
		store:        st,
		limiter:      limiter,
		verifier:     verifier,
		ratingsTable: ratingsTable,
		parentTable:  parentTable,
	}
}

type ratingRequest struct {
	ContactID      string  `json:"contactId"`
	ServiceID      string  `json:"serviceId"`
	Stars          float64 `json:"stars"`
	DisplayName    string  `json:"displayName"`
	DeviceHash     string  `json:"deviceHash"`
	TurnstileToken string  `json:"turnstileToken"`
}

// Submit persists a rating, then re-reads all ratings for the parent and
// writes the recomputed mean and count back onto it. The read-recompute-write
// cycle has no isolation: concurrent submissions for the same parent can
// interleave and the final aggregate may miss some of them.
func (h *Ratings) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.limiter.Allow(clientIP(r)+":"+r.URL.Path, ratingsSubmitLimit) {
		respondError(w, http.StatusBadRequest, "Too many requests. Please slow down.")
		return
	}

	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if !h.verifier.Verify(ctx, req.TurnstileToken) {
		respondError(w, http.StatusBadRequest, "Bot verification failed.")
		return
	}

	parentID := req.ContactID
	if parentID == "" {
		parentID = req.ServiceID
	}
	stars := int(req.Stars)
	if parentID == "" || req.Stars != float64(stars) || stars < 1 || stars > 5 {
		respondError(w, http.StatusBadRequest, "Invalid input")
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = "Anonymous"
	}

	rating := models.Rating{
		ParentID:    parentID,
		Stars:       stars,
		DisplayName: truncate(displayName, 120),
		IPHash:      sha256Hex(clientIP(r)),
		DeviceHash:  truncate(req.DeviceHash, 120),
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := h.store.Create(ctx, h.ratingsTable, []store.Fields{rating.Fields()}); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	summary, err := ratingSummary(ctx, h.store, h.ratingsTable, parentID, ratingsRecomputeMax)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	_, err = h.store.Update(ctx, h.parentTable, []store.RecordUpdate{{
		ID: parentID,
		Fields: store.Fields{
			"AverageRating": summary.Average,
			"ReviewsCount":  summary.Count,
		},
	}})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"average": summary.Average,
		"count":   summary.Count,
	})
}
