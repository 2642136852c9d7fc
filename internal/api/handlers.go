// Package api implements the HTTP request handlers for the vehicle registry.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"vehicle-registry/internal/auth"
	"vehicle-registry/internal/media"
	"vehicle-registry/internal/models"
	"vehicle-registry/internal/registration"
	"vehicle-registry/internal/storage"
)

const maxUploadMemory = 32 << 20

// Handler composes the token service, admin principal, vehicle store, and
// media manager behind the HTTP surface. Handlers are stateless; every
// request is authorized and served independently.
type Handler struct {
	Store  storage.Repository
	Tokens *auth.TokenService
	Admin  auth.Principal
	Media  *media.Manager
	Logger *slog.Logger
}

// NewHandler wires the collaborators into a request handler set.
func NewHandler(store storage.Repository, tokens *auth.TokenService, admin auth.Principal, mediaManager *media.Manager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Store: store, Tokens: tokens, Admin: admin, Media: mediaManager, Logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
}

// Root reports service identity, mirroring the public landing response.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "service": "Vehicle Registry API"})
}

// Health reports datastore reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.Store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		h.Logger.Error("datastore ping failed", "error", err)
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// Login verifies the submitted credentials against the configured admin
// principal and issues a bearer token on success.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}
	if err := parseForm(r); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if err := h.Admin.Authenticate(username, password); err != nil {
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials)
		return
	}

	token, _, err := h.Tokens.Issue(h.Admin.Email(), auth.RoleAdmin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// Cars dispatches the /cars collection endpoints.
func (h *Handler) Cars(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listVehicles(w, r)
	case http.MethodPost:
		h.createVehicle(w, r)
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

// CarByReg dispatches the /cars/{reg} endpoints, including /cars/{reg}/sold.
func (h *Handler) CarByReg(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/cars/"), "/")
	if trimmed == "" {
		// Bare /cars/ is the collection route.
		h.Cars(w, r)
		return
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) > 2 {
		writeError(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	reg := registration.Normalize(parts[0])

	if len(parts) == 2 {
		if parts[1] != "sold" {
			writeError(w, http.StatusNotFound, fmt.Errorf("not found"))
			return
		}
		if r.Method != http.MethodPatch {
			methodNotAllowed(w, r, "PATCH")
			return
		}
		h.markVehicleSold(w, r, reg)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getVehicle(w, r, reg)
	case http.MethodPatch:
		h.updateVehicle(w, r, reg)
	case http.MethodDelete:
		h.deleteVehicle(w, r, reg)
	default:
		methodNotAllowed(w, r, "GET, PATCH, DELETE")
	}
}

func (h *Handler) listVehicles(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	vehicles, err := h.Store.ListVehicles(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

func filterFromQuery(r *http.Request) (storage.Filter, error) {
	query := r.URL.Query()
	filter := storage.Filter{
		Query: query.Get("q"),
		Brand: query.Get("brand"),
	}
	if raw := strings.TrimSpace(query.Get("max_price")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return storage.Filter{}, fmt.Errorf("invalid max_price %q", raw)
		}
		filter.MaxPrice = &value
	}
	if raw := strings.TrimSpace(query.Get("is_sold")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return storage.Filter{}, fmt.Errorf("invalid is_sold %q", raw)
		}
		filter.Sold = &value
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			return storage.Filter{}, fmt.Errorf("invalid limit %q", raw)
		}
		filter.Limit = value
	}
	return filter, nil
}

func (h *Handler) getVehicle(w http.ResponseWriter, r *http.Request, reg string) {
	vehicle, ok, err := h.Store.GetVehicle(r.Context(), reg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("vehicle not found"))
		return
	}
	writeJSON(w, http.StatusOK, vehicle)
}

func (h *Handler) createVehicle(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid form data: %w", err))
		return
	}

	vehicle, err := vehicleFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if _, exists, err := h.Store.GetVehicle(r.Context(), vehicle.Reg); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	} else if exists {
		writeError(w, http.StatusConflict, storage.ErrDuplicateRegistration)
		return
	}

	uploads, closeUploads, err := uploadsFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer closeUploads()

	urls, err := h.Media.Store(vehicle.Reg, uploads)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("store images: %w", err))
		return
	}
	if urls == nil {
		urls = []string{}
	}
	vehicle.Images = urls

	created, err := h.Store.CreateVehicle(r.Context(), vehicle)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateRegistration) {
			// Lost the race to a concurrent create; drop the media written
			// for the losing request.
			if removeErr := h.Media.Remove(vehicle.Reg); removeErr != nil {
				h.Logger.Warn("failed to remove media after conflict", "reg", vehicle.Reg, "error", removeErr)
			}
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.Logger.Info("vehicle created", "reg", created.Reg, "images", len(created.Images))
	writeJSON(w, http.StatusOK, created)
}

func vehicleFromForm(r *http.Request) (models.Vehicle, error) {
	required := func(key string) (string, error) {
		value, ok := formValue(r, key)
		if !ok || strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("%s is required", key)
		}
		return value, nil
	}

	reg, err := required("reg")
	if err != nil {
		return models.Vehicle{}, err
	}
	normalized := registration.Normalize(reg)
	if normalized == "" {
		return models.Vehicle{}, errors.New("reg is required")
	}
	// Registrations become media directory names and URL segments.
	if strings.ContainsAny(normalized, `/\`) || strings.Contains(normalized, "..") {
		return models.Vehicle{}, fmt.Errorf("invalid reg %q", normalized)
	}

	vehicle := models.Vehicle{Reg: normalized}
	for key, dest := range map[string]*string{
		"brand":        &vehicle.Brand,
		"model":        &vehicle.Model,
		"fuel":         &vehicle.Fuel,
		"transmission": &vehicle.Transmission,
		"owner":        &vehicle.Owner,
		"description":  &vehicle.Description,
	} {
		value, err := required(key)
		if err != nil {
			return models.Vehicle{}, err
		}
		*dest = value
	}

	yearRaw, err := required("year")
	if err != nil {
		return models.Vehicle{}, err
	}
	if vehicle.Year, err = strconv.Atoi(strings.TrimSpace(yearRaw)); err != nil {
		return models.Vehicle{}, fmt.Errorf("invalid year %q", yearRaw)
	}

	priceRaw, err := required("price")
	if err != nil {
		return models.Vehicle{}, err
	}
	if vehicle.Price, err = strconv.ParseFloat(strings.TrimSpace(priceRaw), 64); err != nil {
		return models.Vehicle{}, fmt.Errorf("invalid price %q", priceRaw)
	}

	kmsRaw, err := required("kms")
	if err != nil {
		return models.Vehicle{}, err
	}
	if vehicle.Kms, err = strconv.ParseInt(strings.TrimSpace(kmsRaw), 10, 64); err != nil {
		return models.Vehicle{}, fmt.Errorf("invalid kms %q", kmsRaw)
	}
	if vehicle.Kms < 0 {
		return models.Vehicle{}, errors.New("kms must not be negative")
	}

	return vehicle, nil
}

func uploadsFromForm(r *http.Request) ([]media.UploadFile, func(), error) {
	if r.MultipartForm == nil {
		return nil, func() {}, nil
	}
	headers := r.MultipartForm.File["images"]
	files := make([]media.UploadFile, 0, len(headers))
	closers := make([]func(), 0, len(headers))
	closeAll := func() {
		for _, close := range closers {
			close()
		}
	}
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("open upload %q: %w", header.Filename, err)
		}
		closers = append(closers, func() { _ = file.Close() })
		files = append(files, media.UploadFile{Filename: header.Filename, Content: file})
	}
	return files, closeAll, nil
}

func (h *Handler) updateVehicle(w http.ResponseWriter, r *http.Request, reg string) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	if err := parseForm(r); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	update, err := updateFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	vehicle, err := h.Store.UpdateVehicle(r.Context(), reg, update)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrEmptyUpdate):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, vehicle)
}

func updateFromForm(r *http.Request) (storage.VehicleUpdate, error) {
	var update storage.VehicleUpdate

	for key, dest := range map[string]**string{
		"brand":        &update.Brand,
		"model":        &update.Model,
		"fuel":         &update.Fuel,
		"transmission": &update.Transmission,
		"owner":        &update.Owner,
		"description":  &update.Description,
	} {
		if value, ok := formValue(r, key); ok {
			v := value
			*dest = &v
		}
	}
	if raw, ok := formValue(r, "year"); ok {
		value, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return storage.VehicleUpdate{}, fmt.Errorf("invalid year %q", raw)
		}
		update.Year = &value
	}
	if raw, ok := formValue(r, "price"); ok {
		value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return storage.VehicleUpdate{}, fmt.Errorf("invalid price %q", raw)
		}
		update.Price = &value
	}
	if raw, ok := formValue(r, "kms"); ok {
		value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return storage.VehicleUpdate{}, fmt.Errorf("invalid kms %q", raw)
		}
		update.Kms = &value
	}
	return update, nil
}

func (h *Handler) markVehicleSold(w http.ResponseWriter, r *http.Request, reg string) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	vehicle, err := h.Store.MarkVehicleSold(r.Context(), reg)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"reg":    vehicle.Reg,
		"status": "sold",
	})
}

func (h *Handler) deleteVehicle(w http.ResponseWriter, r *http.Request, reg string) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	removed, err := h.Store.DeleteVehicle(r.Context(), reg)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// Record removal and media removal are two steps; a media failure leaves
	// orphaned files for manual cleanup rather than resurrecting the record.
	if err := h.Media.Remove(removed.Reg); err != nil {
		h.Logger.Warn("failed to remove media directory", "reg", removed.Reg, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"deleted": removed.Reg,
	})
}

// parseForm accepts both urlencoded and multipart bodies so PATCH updates
// can arrive either way.
func parseForm(r *http.Request) error {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			return fmt.Errorf("invalid form data: %w", err)
		}
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("invalid form data: %w", err)
	}
	return nil
}

// formValue reports a form field and whether it was supplied at all, so
// partial updates can distinguish "absent" from "empty".
func formValue(r *http.Request, key string) (string, bool) {
	if r.MultipartForm != nil {
		if values, ok := r.MultipartForm.Value[key]; ok && len(values) > 0 {
			return values[0], true
		}
	}
	if r.PostForm != nil {
		if values, ok := r.PostForm[key]; ok && len(values) > 0 {
			return values[0], true
		}
	}
	return "", false
}
