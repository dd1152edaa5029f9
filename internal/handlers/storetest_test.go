package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/TheKaroKaro/IDExpatsInMY/internal/store"
)

// fakeStore emulates the hosted tabular store's REST surface: list with
// filterByFormula/maxRecords/sort, retrieve, create, and update. It only
// understands the formula shapes this codebase emits.
type fakeStore struct {
	mu     sync.Mutex
	tables map[string][]store.Record
	nextID int
	fail   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: make(map[string][]store.Record)}
}

func (f *fakeStore) seed(table string, fields store.Fields) store.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec := store.Record{ID: fmt.Sprintf("rec%03d", f.nextID), Fields: fields}
	f.tables[table] = append(f.tables[table], rec)
	return rec
}

func (f *fakeStore) get(table, id string) (store.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.tables[table] {
		if rec.ID == id {
			return rec, true
		}
	}
	return store.Record{}, false
}

func (f *fakeStore) count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

func (f *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.fail {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/base/")
	parts := strings.SplitN(rest, "/", 2)
	table := parts[0]

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && len(parts) == 2:
		for _, rec := range f.tables[table] {
			if rec.ID == parts[1] {
				writeBody(w, rec)
				return
			}
		}
		http.Error(w, `{"error":"NOT_FOUND"}`, http.StatusNotFound)

	case r.Method == http.MethodGet:
		records := filterRecords(f.tables[table], r.URL.Query().Get("filterByFormula"))
		if field := r.URL.Query().Get("sort[0][field]"); field != "" {
			desc := r.URL.Query().Get("sort[0][direction]") == "desc"
			sort.SliceStable(records, func(i, j int) bool {
				a := fmt.Sprintf("%v", records[i].Fields[field])
				b := fmt.Sprintf("%v", records[j].Fields[field])
				if desc {
					return a > b
				}
				return a < b
			})
		}
		if max, _ := strconv.Atoi(r.URL.Query().Get("maxRecords")); max > 0 && len(records) > max {
			records = records[:max]
		}
		writeBody(w, map[string]any{"records": records})

	case r.Method == http.MethodPost:
		var payload struct {
			Records []store.Record `json:"records"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		created := make([]store.Record, 0, len(payload.Records))
		for _, rec := range payload.Records {
			f.nextID++
			rec.ID = fmt.Sprintf("rec%03d", f.nextID)
			f.tables[table] = append(f.tables[table], rec)
			created = append(created, rec)
		}
		writeBody(w, map[string]any{"records": created})

	case r.Method == http.MethodPatch:
		var payload struct {
			Records []store.RecordUpdate `json:"records"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		updated := make([]store.Record, 0, len(payload.Records))
		for _, upd := range payload.Records {
			found := false
			for i, rec := range f.tables[table] {
				if rec.ID != upd.ID {
					continue
				}
				for k, v := range upd.Fields {
					f.tables[table][i].Fields[k] = v
				}
				updated = append(updated, f.tables[table][i])
				found = true
			}
			if !found {
				http.Error(w, `{"error":"NOT_FOUND"}`, http.StatusNotFound)
				return
			}
		}
		writeBody(w, map[string]any{"records": updated})

	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func writeBody(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func filterRecords(records []store.Record, formula string) []store.Record {
	out := make([]store.Record, 0, len(records))
	for _, rec := range records {
		if matchFormula(rec, formula) {
			out = append(out, rec)
		}
	}
	return out
}

func matchFormula(rec store.Record, formula string) bool {
	formula = strings.TrimSpace(formula)
	if formula == "" {
		return true
	}
	if strings.HasPrefix(formula, "AND(") && strings.HasSuffix(formula, ")") {
		for _, cond := range splitConditions(formula[4 : len(formula)-1]) {
			if !matchFormula(rec, cond) {
				return false
			}
		}
		return true
	}

	eq := strings.IndexByte(formula, '=')
	if eq < 0 {
		return false
	}
	field, literal := formula[:eq], formula[eq+1:]
	value := rec.Fields[field]

	switch {
	case strings.HasPrefix(literal, `"`), strings.HasPrefix(literal, `'`):
		want := unquote(literal)
		got, _ := value.(string)
		return got == want
	default:
		want, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return false
		}
		switch v := value.(type) {
		case bool:
			return v == (want != 0)
		case float64:
			return v == want
		case int:
			return float64(v) == want
		default:
			return false
		}
	}
}

// splitConditions splits on commas outside quoted literals.
func splitConditions(s string) []string {
	var (
		out     []string
		start   int
		quote   byte
		escaped bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case quote != 0:
			if c == '\\' {
				escaped = true
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ',':
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func unquote(literal string) string {
	if len(literal) < 2 {
		return literal
	}
	quote := literal[0]
	inner := literal[1 : len(literal)-1]
	if quote == '\'' {
		return inner
	}
	inner = strings.ReplaceAll(inner, `\"`, `"`)
	return strings.ReplaceAll(inner, `\\`, `\`)
}

// testStore wires a real client at a fake upstream.
func testStore(t *testing.T) (*fakeStore, *store.Client) {
	t.Helper()
	fs := newFakeStore()
	ts := httptest.NewServer(fs)
	t.Cleanup(ts.Close)
	return fs, store.NewClient(ts.URL, "base", "test-key")
}
