package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/leapstack-labs/atlas/internal/queries"
	"github.com/leapstack-labs/atlas/pkg/adapter"
	"github.com/leapstack-labs/atlas/pkg/adapters/postgres"
	"github.com/leapstack-labs/atlas/pkg/core"
	"github.com/leapstack-labs/atlas/pkg/inserter"
)

// maxCopyBody caps the size of a bulk load request.
const maxCopyBody = 64 << 20

// Handlers provides the HTTP handlers of the portfolio API.
type Handlers struct {
	db            DB
	stagingSchema string
	logger        *slog.Logger
}

// NewHandlers creates a new Handlers instance. Calls into db are serialized.
func NewHandlers(db DB, stagingSchema string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{
		db:            &serialized{db: db},
		stagingSchema: stagingSchema,
		logger:        logger,
	}
}

type assetType struct {
	ID   any `json:"id"`
	Name any `json:"name"`
}

type user struct {
	ID           any `json:"id"`
	Name         any `json:"name"`
	CreationDate any `json:"creation_date"`
}

type statusResponse struct {
	Status string `json:"status"`
	Name   string `json:"name"`
}

type createUserRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type copyResponse struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

type healthResponse struct {
	Connected bool `json:"connected"`
}

// ListAssetTypes returns every asset type.
func (h *Handlers) ListAssetTypes(w http.ResponseWriter, r *http.Request) {
	rows, err := h.fetchRecords(r, queries.FetchAllAssetTypes, nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]assetType, 0, len(rows))
	for _, row := range rows {
		out = append(out, assetType{ID: row[0], Name: row[1]})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetAssetType resolves an asset type by name.
func (h *Handlers) GetAssetType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rows, err := h.fetchRecords(r, queries.FetchAssetTypeByName, adapter.NamedArgs{"asset_name": name})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(rows) == 0 {
		h.writeError(w, r, fmt.Errorf("asset type %q: %w", name, core.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, assetType{ID: rows[0][0], Name: name})
}

// CreateAssetType inserts the asset type named by the "name" query parameter.
func (h *Handlers) CreateAssetType(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		h.writeError(w, r, badRequestf("query parameter name is required"))
		return
	}
	if err := h.db.Execute(r.Context(), queries.InsertAssetType, adapter.NamedArgs{"name": name}); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Name: name})
}

// ListUsers returns every user without credentials.
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.fetchRecords(r, queries.FetchUsers, nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]user, 0, len(rows))
	for _, row := range rows {
		created := row[2]
		if t, ok := created.(time.Time); ok {
			created = t.Format(time.RFC3339Nano)
		}
		out = append(out, user{ID: row[0], Name: row[1], CreationDate: created})
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateUser stores a user with a bcrypt hash of the given password.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, r, badRequestf("invalid request body: %v", err))
		return
	}
	if req.Name == "" || req.Password == "" || req.Email == "" {
		h.writeError(w, r, badRequestf("name, password and email are required"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			err = badRequestf("password must be at most 72 bytes")
		}
		h.writeError(w, r, err)
		return
	}

	err = h.db.Execute(r.Context(), queries.InsertUser, adapter.NamedArgs{
		"name":          req.Name,
		"password_hash": string(hash),
		"email":         req.Email,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Name: req.Name})
}

// ListProfiles returns every profile.
func (h *Handlers) ListProfiles(w http.ResponseWriter, r *http.Request) {
	h.fetchJSON(w, r, queries.FetchProfiles, nil)
}

// ProfileTransactions returns the transactions of one profile, newest first.
// With all=1 every column of the transaction table is returned.
func (h *Handlers) ProfileTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt(r, "userID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if allColumns(r) {
		h.fetchJSON(w, r, queries.FetchProfileTransactions, adapter.Args{userID})
		return
	}
	h.fetchJSON(w, r, queries.FetchProfileAssetTransactions, adapter.NamedArgs{"user_id": userID})
}

// ProfileAssetTypes returns the asset types a profile holds.
func (h *Handlers) ProfileAssetTypes(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt(r, "userID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.fetchJSON(w, r, queries.FetchAssetTypesByProfile, adapter.NamedArgs{"user_id": userID})
}

// AssetData returns the price history of an asset, newest first. With
// all=1 every stored column is returned, unordered.
func (h *Handlers) AssetData(w http.ResponseWriter, r *http.Request) {
	isin := chi.URLParam(r, "isin")
	if allColumns(r) {
		h.fetchJSON(w, r, queries.FetchAllAssetData, adapter.Args{isin})
		return
	}
	h.fetchJSON(w, r, queries.FetchAssetDataByISIN, adapter.NamedArgs{"asset_isin": isin})
}

// CopyTable bulk loads the delimited request body into {table}. With an
// on_conflict parameter the body is merged through a staging table instead.
func (h *Handlers) CopyTable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCopyBody))
	if err != nil {
		h.writeError(w, r, badRequestf("reading body: %v", err))
		return
	}
	if len(body) == 0 {
		h.writeError(w, r, badRequestf("request body must contain the rows to load"))
		return
	}

	load := postgres.CopyRequest{
		Table:     chi.URLParam(r, "table"),
		Schema:    q.Get("schema"),
		CSV:       string(body),
		Columns:   splitList(q.Get("columns")),
		Delimiter: q.Get("delimiter"),
	}

	var n int64
	if policy := q.Get("on_conflict"); policy != "" {
		n, err = h.db.Upsert(r.Context(), inserter.UpsertRequest{
			Load:          load,
			OnConflict:    postgres.ConflictPolicy(strings.ToLower(policy)),
			PKeys:         splitList(q.Get("pkeys")),
			StagingSchema: h.stagingSchema,
		})
	} else {
		n, err = h.db.Insert(r.Context(), load)
	}
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			err = badRequestf("%v", err)
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, copyResponse{Table: load.Table, Rows: n})
}

// Health reports whether the data layer holds its session.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	connected := h.db.IsConnected()
	status := http.StatusOK
	if !connected {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{Connected: connected})
}

func (h *Handlers) fetchRecords(r *http.Request, query string, params adapter.Binder) ([][]any, error) {
	res, err := h.db.Fetch(r.Context(), query, params, core.ShapeRecord)
	if err != nil {
		return nil, err
	}
	rows, ok := res.([][]any)
	if !ok {
		return nil, errors.New("unexpected result shape")
	}
	return rows, nil
}

func (h *Handlers) fetchJSON(w http.ResponseWriter, r *http.Request, query string, params adapter.Binder) {
	res, err := h.db.Fetch(r.Context(), query, params, core.ShapeJSON)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func pathInt(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, badRequestf("%s must be an integer, got %q", name, raw)
	}
	return v, nil
}

func allColumns(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	return v
}

// splitList parses a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
