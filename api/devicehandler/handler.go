package devicehandler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oneedge/gateway/api"
	"github.com/oneedge/gateway/engine"
	"github.com/oneedge/gateway/interfaces"
	"github.com/oneedge/gateway/metrics"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// Handler serves the device identity API: provisioning, the dual-purpose
// registration endpoint, and the rotate/quarantine/authorize/delete
// lifecycle. Every mutation runs as one store transaction; the engine
// decides what commits.
type Handler struct {
	store  interfaces.DeviceStore
	engine *engine.Engine
	log    *slog.Logger

	// Now supplies the wall clock for protocol decisions; tests pin it.
	Now func() time.Time
}

// NewHandler creates a handler bound to a store and protocol engine.
func NewHandler(store interfaces.DeviceStore, eng *engine.Engine, log *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		engine: eng,
		log:    log,
		Now:    time.Now,
	}
}

// RegisterRoutes mounts the device API. The registration endpoint stays open
// to devices; everything else goes behind operatorAuth when one is given.
func (h *Handler) RegisterRoutes(r chi.Router, operatorAuth func(http.Handler) http.Handler) {
	r.Post("/api/devices/register", h.HandleRegister)

	r.Group(func(r chi.Router) {
		if operatorAuth != nil {
			r.Use(operatorAuth)
		}
		r.Post("/api/devices", h.HandleProvision)
		r.Get("/api/devices", h.HandleList)
		r.Post("/api/devices/{device_id}/rotate", h.HandleRotate)
		r.Post("/api/devices/{device_id}/quarantine", h.HandleQuarantine)
		r.Post("/api/devices/{device_id}/authorize", h.HandleAuthorize)
		r.Delete("/api/devices/{device_id}", h.HandleDelete)
	})
}

// HandleProvision upserts a device record.
//
// URL format: POST /api/devices
func (h *Handler) HandleProvision(w http.ResponseWriter, r *http.Request) {
	var req api.ProvisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	now := h.Now()
	var (
		outcome engine.ProvisionOutcome
		dev     *interfaces.Device
	)
	err := h.store.Mutate(r.Context(), req.DeviceID, func(stored *interfaces.Device, found bool) bool {
		outcome = h.engine.Provision(stored, found, req.EngineRequest(), now)
		dev = stored.Clone()
		return outcome.Persist
	})
	if err != nil {
		h.storeError(w, err, "provision", req.DeviceID)
		return
	}

	metrics.DevicesProvisioned.Inc()
	h.log.Info("Device provisioned", "deviceID", req.DeviceID, "created", outcome.Created)
	h.writeJSON(w, http.StatusOK, api.ProvisionResponse{
		Status:          "ok",
		Device:          api.NewDeviceSummary(dev, now),
		BootstrapSecret: outcome.BootstrapSecret,
	})
}

// HandleList returns all device records in their serialized operator view.
//
// URL format: GET /api/devices
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	devices, err := h.store.List(r.Context())
	if err != nil {
		h.storeError(w, err, "list", "")
		return
	}

	now := h.Now()
	summaries := make([]api.DeviceSummary, 0, len(devices))
	for _, dev := range devices {
		summaries = append(summaries, api.NewDeviceSummary(dev, now))
	}
	h.writeJSON(w, http.StatusOK, summaries)
}

// HandleRegister runs the challenge-response protocol. The same endpoint
// issues challenges and verifies responses; the engine disambiguates on the
// request fields.
//
// URL format: POST /api/devices/register
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	now := h.Now()
	var (
		outcome engine.RegisterOutcome
		dev     *interfaces.Device
	)
	err := h.store.Mutate(r.Context(), req.DeviceID, func(stored *interfaces.Device, found bool) bool {
		outcome = h.engine.Register(stored, found, req.EngineRequest(), now)
		dev = stored.Clone()
		return outcome.Persist
	})
	if err != nil {
		h.storeError(w, err, "register", req.DeviceID)
		return
	}

	if outcome.Err != nil {
		metrics.AuthFailures.WithLabelValues(string(outcome.Err.Kind)).Inc()
		if dev != nil && dev.Quarantined && outcome.Err.Kind != interfaces.KindQuarantined {
			metrics.QuarantineEvents.Inc()
		}
		h.log.Warn("Device registration failed",
			"deviceID", req.DeviceID, "kind", string(outcome.Err.Kind))
		h.writeError(w, api.HTTPStatusForAuthError(outcome.Err.Kind), outcome.Err.Message, string(outcome.Err.Kind))
		return
	}

	if outcome.Status == engine.StatusChallenge {
		metrics.ChallengesIssued.Inc()
		expiresAt := outcome.ExpiresAt
		h.writeJSON(w, http.StatusOK, api.RegisterResponse{
			Status:    engine.StatusChallenge,
			Challenge: outcome.Challenge,
			ExpiresAt: &expiresAt,
			Device:    api.NewDeviceSummary(dev, now),
		})
		return
	}

	metrics.AuthSuccesses.Inc()
	if outcome.SessionSecret != "" {
		metrics.SecretRotations.Inc()
	}
	h.writeJSON(w, http.StatusOK, api.RegisterResponse{
		Status:            engine.StatusOK,
		Device:            api.NewDeviceSummary(dev, now),
		Policy:            outcome.Policy,
		NextRotationHours: dev.RotationIntervalHours,
		SessionSecret:     outcome.SessionSecret,
	})
}

// HandleRotate forces a session secret rotation.
//
// URL format: POST /api/devices/{device_id}/rotate
func (h *Handler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "device_id")
	now := h.Now()

	var (
		outcome engine.RotateOutcome
		dev     *interfaces.Device
	)
	err := h.store.Mutate(r.Context(), deviceID, func(stored *interfaces.Device, found bool) bool {
		outcome = h.engine.Rotate(stored, found, now)
		dev = stored.Clone()
		return outcome.Persist
	})
	if err != nil {
		h.storeError(w, err, "rotate", deviceID)
		return
	}
	if outcome.Err != nil {
		h.writeError(w, api.HTTPStatusForAuthError(outcome.Err.Kind), outcome.Err.Message, string(outcome.Err.Kind))
		return
	}

	metrics.SecretRotations.Inc()
	h.log.Info("Forced session secret rotation", "deviceID", deviceID)
	h.writeJSON(w, http.StatusOK, api.RotateResponse{
		Status:        "ok",
		Device:        api.NewDeviceSummary(dev, now),
		SessionSecret: outcome.SessionSecret,
	})
}

// HandleQuarantine latches a device out of the authentication flow.
//
// URL format: POST /api/devices/{device_id}/quarantine
func (h *Handler) HandleQuarantine(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(dev *interfaces.Device, found bool, reason string) engine.LifecycleOutcome {
		out := h.engine.Quarantine(dev, found, reason)
		if out.Err == nil {
			metrics.QuarantineEvents.Inc()
		}
		return out
	})
}

// HandleAuthorize releases a quarantined device back to the protocol.
//
// URL format: POST /api/devices/{device_id}/authorize
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.engine.Authorize)
}

// HandleDelete removes a device record permanently.
//
// URL format: DELETE /api/devices/{device_id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "device_id")
	err := h.store.Delete(r.Context(), deviceID)
	if errors.Is(err, interfaces.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, interfaces.ErrDeviceNotFound.Message, string(interfaces.KindDeviceNotFound))
		return
	}
	if err != nil {
		h.storeError(w, err, "delete", deviceID)
		return
	}

	h.log.Info("Device deleted", "deviceID", deviceID)
	h.writeJSON(w, http.StatusOK, api.StatusResponse{Status: "ok"})
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(*interfaces.Device, bool, string) engine.LifecycleOutcome) {
	deviceID := chi.URLParam(r, "device_id")

	// The body is optional on lifecycle calls.
	var req api.LifecycleRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body", "")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON payload", "")
			return
		}
	}

	var (
		outcome engine.LifecycleOutcome
		dev     *interfaces.Device
	)
	err = h.store.Mutate(r.Context(), deviceID, func(stored *interfaces.Device, found bool) bool {
		outcome = op(stored, found, req.Reason)
		dev = stored.Clone()
		return outcome.Persist
	})
	if err != nil {
		h.storeError(w, err, "lifecycle", deviceID)
		return
	}
	if outcome.Err != nil {
		h.writeError(w, api.HTTPStatusForAuthError(outcome.Err.Kind), outcome.Err.Message, string(outcome.Err.Kind))
		return
	}

	h.writeJSON(w, http.StatusOK, api.LifecycleResponse{
		Status: "ok",
		Device: api.NewDeviceSummary(dev, h.Now()),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body", "")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload", "")
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, kind string) {
	h.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}

// storeError reports a storage fault. The transaction already rolled back;
// nothing of the call's mutations survives.
func (h *Handler) storeError(w http.ResponseWriter, err error, op, deviceID string) {
	h.log.Error("Device store operation failed", "op", op, "deviceID", deviceID, "err", err)
	h.writeError(w, http.StatusInternalServerError, "device store unavailable", "")
}
