package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/TheKaroKaro/IDExpatsInMY/internal/middleware"
	"github.com/TheKaroKaro/IDExpatsInMY/internal/models"
	"github.com/TheKaroKaro/IDExpatsInMY/internal/store"
	"github.com/TheKaroKaro/IDExpatsInMY/internal/turnstile"
)

// FieldRule whitelists one submitted field. Anything the rules don't name is
// discarded; oversized values are truncated, not rejected.
type FieldRule struct {
	Field    string   // store column
	Keys     []string // accepted body keys, defaults to Field
	Max      int      // rune cap, 0 means uncapped
	Required bool
	Default  string
	Bool     bool
}

func (r FieldRule) keys() []string {
	if len(r.Keys) > 0 {
		return r.Keys
	}
	return []string{r.Field}
}

// Descriptor parameterizes the moderation-gated handler for one content
// type. The submit and list flows are identical across types; only the
// table, field rules, and rate ceiling differ.
type Descriptor struct {
	Table       string
	SubmitLimit int // submissions per minute per IP+path

	// Flat payloads carry fields at the body root (comments); otherwise
	// they sit under a "fields" object (listings, articles).
	Flat  bool
	Rules []FieldRule

	HasSlug       bool
	HasFeatured   bool
	HasAggregates bool // zeroed AverageRating/ReviewsCount on create
	DateOnly      bool // CreatedAt as date instead of timestamp

	RatingsTable string // attach a rating summary to single-id lookups
	ParentColumn string // list supports filtering by parent id
}

// ListingsDescriptor covers community service/contact entries.
func ListingsDescriptor(table, ratingsTable string) Descriptor {
	return Descriptor{
		Table:         table,
		SubmitLimit:   10,
		HasAggregates: true,
		DateOnly:      true,
		RatingsTable:  ratingsTable,
		Rules: []FieldRule{
			{Field: "Name", Max: 120, Required: true},
			{Field: "Category", Max: 60, Required: true},
			{Field: "Phone", Max: 60},
			{Field: "WhatsApp", Max: 60},
			{Field: "Address", Max: 500},
			{Field: "Area", Max: 120},
			{Field: "Description", Max: 2000, Required: true},
			{Field: "SubmittedBy", Max: 120, Required: true},
		},
	}
}

func ArticlesDescriptor(table string) Descriptor {
	return Descriptor{
		Table:       table,
		SubmitLimit: 10,
		HasSlug:     true,
		HasFeatured: true,
		DateOnly:    true,
		Rules: []FieldRule{
			{Field: "Title", Max: 200, Required: true},
			{Field: "Content", Max: 10000, Required: true},
			{Field: "Author", Max: 120, Default: "Anonymous"},
			{Field: "ImageURL"},
			{Field: "Category", Max: 60},
			{Field: "Slug", Max: 200},
			{Field: "Featured", Bool: true},
		},
	}
}

func CommentsDescriptor(table string) Descriptor {
	return Descriptor{
		Table:        table,
		SubmitLimit:  20,
		Flat:         true,
		ParentColumn: "ContactId",
		Rules: []FieldRule{
			{Field: "ContactId", Keys: []string{"contactId", "serviceId"}, Required: true},
			{Field: "DisplayName", Keys: []string{"displayName"}, Max: 120, Required: true},
			{Field: "Comment", Keys: []string{"comment"}, Max: 3000, Required: true},
		},
	}
}

// Collection serves one moderation-gated content type: public reads see only
// Approved records, submissions always enter Pending.
type Collection struct {
	store    *store.Client
	limiter  middleware.Limiter
	verifier *turnstile.Verifier
	desc     Descriptor
}

func NewCollection(st *store.Client, limiter middleware.Limiter, verifier *turnstile.Verifier, desc Descriptor) *Collection {
	return &Collection{store: st, limiter: limiter, verifier: verifier, desc: desc}
}

func (h *Collection) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if id := q.Get("id"); id != "" {
		h.getByID(ctx, w, id)
		return
	}

	if h.desc.HasSlug {
		if slug := q.Get("slug"); slug != "" {
			records, err := h.store.List(ctx, h.desc.Table, store.ListOptions{
				Filter:     "AND(Status='Approved',Slug=" + store.String(slug) + ")",
				MaxRecords: 1,
			})
			if err != nil {
				respondError(w, http.StatusInternalServerError, err.Error())
				return
			}
			respondJSON(w, http.StatusOK, map[string]any{"record": firstOrNil(records)})
			return
		}
	}

	if h.desc.HasFeatured && q.Get("featured") != "" {
		records, err := h.store.List(ctx, h.desc.Table, store.ListOptions{
			Filter:     "AND(Status='Approved',Featured=1)",
			MaxRecords: 1,
			Sort:       []store.SortField{{Field: "CreatedAt", Direction: "desc"}},
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"record": firstOrNil(records)})
		return
	}

	filter := "Status='Approved'"
	if h.desc.ParentColumn != "" {
		if parent := firstQuery(q, "parentId", "contactId", "serviceId"); parent != "" {
			filter = "AND(Status='Approved'," + h.desc.ParentColumn + "=" + store.String(parent) + ")"
		}
	}

	records, err := h.store.List(ctx, h.desc.Table, store.ListOptions{
		Filter:     filter,
		MaxRecords: parsePositiveInt(q.Get("limit"), 200),
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

func (h *Collection) getByID(ctx context.Context, w http.ResponseWriter, id string) {
	rec, err := h.store.Retrieve(ctx, h.desc.Table, id)
	if errors.Is(err, store.ErrNotFound) {
		respondJSON(w, http.StatusOK, map[string]any{"record": nil})
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.desc.RatingsTable != "" {
		summary, err := ratingSummary(ctx, h.store, h.desc.RatingsTable, id, 200)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"record": rec, "rating": summary})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"record": rec})
}

func (h *Collection) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.limiter.Allow(clientIP(r)+":"+r.URL.Path, h.desc.SubmitLimit) {
		respondError(w, http.StatusBadRequest, "Too many requests. Please slow down.")
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	token, _ := body["turnstileToken"].(string)
	if !h.verifier.Verify(ctx, token) {
		respondError(w, http.StatusBadRequest, "Bot verification failed.")
		return
	}

	src := body
	if !h.desc.Flat {
		src, _ = body["fields"].(map[string]any)
	}

	fields := store.Fields{}
	for _, rule := range h.desc.Rules {
		if rule.Bool {
			fields[rule.Field] = truthy(lookup(src, rule.keys()))
			continue
		}
		value := stringValue(lookup(src, rule.keys()))
		if value == "" {
			if rule.Required {
				respondError(w, http.StatusBadRequest, "Missing required fields.")
				return
			}
			value = rule.Default
		}
		fields[rule.Field] = truncate(value, rule.Max)
	}

	// Server-owned fields win over anything the caller sent.
	now := time.Now().UTC()
	fields["Status"] = models.StatusPending
	if h.desc.DateOnly {
		fields["CreatedAt"] = now.Format("2006-01-02")
	} else {
		fields["CreatedAt"] = now.Format(time.RFC3339)
	}
	if h.desc.HasAggregates {
		fields["AverageRating"] = 0
		fields["ReviewsCount"] = 0
	}
	if h.desc.HasSlug {
		if slug, _ := fields["Slug"].(string); slug == "" {
			title, _ := fields["Title"].(string)
			fields["Slug"] = slugify(title)
		}
	}
	if h.desc.HasFeatured {
		if featured, _ := fields["Featured"].(bool); featured {
			// Exclusivity is best-effort; a failed clear never blocks the submission.
			if err := clearFeatured(ctx, h.store, h.desc.Table); err != nil {
				log.Printf("clear featured on %s: %v", h.desc.Table, err)
			}
		}
	}

	created, err := h.store.Create(ctx, h.desc.Table, []store.Fields{fields})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "record": created[0]})
}

// clearFeatured unsets Featured on every article currently carrying it.
// Sequential updates, no transaction.
func clearFeatured(ctx context.Context, st *store.Client, table string) error {
	records, err := st.List(ctx, table, store.ListOptions{Filter: "Featured=1"})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	updates := make([]store.RecordUpdate, 0, len(records))
	for _, rec := range records {
		updates = append(updates, store.RecordUpdate{ID: rec.ID, Fields: store.Fields{"Featured": false}})
	}
	_, err = st.Update(ctx, table, updates)
	return err
}

// ratingSummary re-reads all ratings for parentID and reduces them to the
// rounded mean and exact count.
func ratingSummary(ctx context.Context, st *store.Client, table, parentID string, max int) (models.RatingSummary, error) {
	records, err := st.List(ctx, table, store.ListOptions{
		Filter:     "ContactId=" + store.String(parentID),
		MaxRecords: max,
	})
	if err != nil {
		return models.RatingSummary{}, err
	}

	var sum float64
	for _, rec := range records {
		if stars, ok := rec.Fields["Stars"].(float64); ok {
			sum += stars
		}
	}
	summary := models.RatingSummary{Count: len(records)}
	if summary.Count > 0 {
		summary.Average = math.Round(sum/float64(summary.Count)*10) / 10
	}
	return summary, nil
}

func firstOrNil(records []store.Record) any {
	if len(records) > 0 {
		return records[0]
	}
	return nil
}

func firstQuery(q url.Values, keys ...string) string {
	for _, key := range keys {
		if v := q.Get(key); v != "" {
			return v
		}
	}
	return ""
}

func lookup(src map[string]any, keys []string) any {
	for _, key := range keys {
		v, ok := src[key]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			continue
		}
		return v
	}
	return nil
}
