package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/rolloutkit/pkg/controller"
	"github.com/dmitrymomot/rolloutkit/pkg/evaluator"
	"github.com/dmitrymomot/rolloutkit/pkg/policy"
)

// RouterOptions wires the components exposed over the operator API.
// Store is required; Controller and Evaluator enable their route groups when
// provided.
type RouterOptions struct {
	Store      *policy.Store
	Controller *controller.Controller
	Evaluator  *evaluator.Evaluator
}

// Router builds the operator API. Intended to be mounted into a host router:
//
//	r := chi.NewRouter()
//	r.Mount("/rollout", httpapi.Router(httpapi.RouterOptions{
//	    Store:      store,
//	    Controller: ctrl,
//	    Evaluator:  eval,
//	}))
func Router(opts RouterOptions) chi.Router {
	if opts.Store == nil {
		panic("httpapi: policy store cannot be nil")
	}
	h := &handlers{
		store:      opts.Store,
		controller: opts.Controller,
		evaluator:  opts.Evaluator,
	}

	r := chi.NewRouter()
	r.Get("/policy", h.currentPolicy)

	r.Route("/features/{key}", func(feat chi.Router) {
		if h.controller != nil {
			feat.Get("/state", h.featureState)
			feat.Post("/target", h.addTarget)
			feat.Post("/resume", h.resume)
			feat.Post("/rollback", h.forceRollback)
			feat.Post("/rearm", h.reArm)
			feat.Put("/percent", h.setDesiredPercent)
		}
		if h.evaluator != nil {
			feat.Get("/decision", h.decision)
		}
	})

	return r
}

type handlers struct {
	store      *policy.Store
	controller *controller.Controller
	evaluator  *evaluator.Evaluator
}

func (h *handlers) currentPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Current())
}

func (h *handlers) featureState(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	state, err := h.controller.StateOf(key)
	if err != nil {
		writeError(w, err)
		return
	}

	rule, known := h.store.Current().Rule(key)
	writeJSON(w, http.StatusOK, map[string]any{
		"feature_key":     key,
		"state":           state,
		"rollout_percent": rule.RolloutPercent,
		"kill_switch":     rule.KillSwitch,
		"in_policy":       known,
	})
}

func (h *handlers) addTarget(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DesiredPercent  int     `json:"desired_percent"`
		StepSize        int     `json:"step_size"`
		MetricThreshold float64 `json:"metric_threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed target body"})
		return
	}

	err := h.controller.AddTarget(controller.Target{
		FeatureKey:      chi.URLParam(r, "key"),
		DesiredPercent:  body.DesiredPercent,
		StepSize:        body.StepSize,
		MetricThreshold: body.MetricThreshold,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *handlers) resume(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Resume(chi.URLParam(r, "key")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) forceRollback(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.ForceRollback(r.Context(), chi.URLParam(r, "key")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) reArm(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.ReArm(r.Context(), chi.URLParam(r, "key")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setDesiredPercent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DesiredPercent *int `json:"desired_percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DesiredPercent == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "body must be {\"desired_percent\": <0-100>}",
		})
		return
	}

	if err := h.controller.SetDesiredPercent(r.Context(), chi.URLParam(r, "key"), *body.DesiredPercent); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decision previews what the evaluator would answer for an identity. This
// emits a real exposure record, same as any evaluation.
func (h *handlers) decision(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "identity query parameter is required",
		})
		return
	}

	localDefault := false
	if raw := r.URL.Query().Get("default"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "default query parameter must be a boolean",
			})
			return
		}
		localDefault = v
	}

	key := chi.URLParam(r, "key")
	enabled := h.evaluator.IsEnabledWithDefault(r.Context(), identity, key, localDefault)
	writeJSON(w, http.StatusOK, map[string]any{
		"feature_key":    key,
		"identity":       identity,
		"enabled":        enabled,
		"policy_version": h.store.Current().Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var invalidTransition *controller.ErrInvalidTransition
	switch {
	case errors.Is(err, controller.ErrUnknownFeature):
		status = http.StatusNotFound
	case errors.Is(err, controller.ErrInvalidTarget):
		status = http.StatusBadRequest
	case errors.Is(err, controller.ErrTargetExists):
		status = http.StatusConflict
	case errors.As(err, &invalidTransition):
		status = http.StatusConflict
	case errors.Is(err, policy.ErrStalePolicy):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
