package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scamlens/scamlens/internal/model"
	"github.com/scamlens/scamlens/internal/monitoring"
	"github.com/scamlens/scamlens/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the investigation API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initCore(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store, env.Engine)
		if cfg.Monitoring.WebhookURL != "" {
			alerter := monitoring.NewAlerter(cfg.Monitoring)
			checker := monitoring.NewChecker(collector, alerter, cfg.Monitoring)
			go checker.Run(ctx)
		}

		r := newRouter(ctx, env, collector)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(serverCtx context.Context, env *coreEnv, collector *monitoring.Collector) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		snap, err := collector.Collect(req.Context(), cfg.Monitoring.LookbackWindowHours)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "collect metrics")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/investigations", handleSubmit(serverCtx, env))
		r.Get("/investigations/{id}", handleGet(env))
		r.Get("/investigations/{id}/status", handleStatus(env))
		r.Get("/investigations", handleList(env))
		r.Get("/models", handleModels(env))
		r.Post("/quote", handleQuote(env))
		r.Get("/users/{id}/balance", handleBalance(env))
	})

	return r
}

type submitRequest struct {
	UserID    string           `json:"user_id"`
	Tier      string           `json:"tier"`
	Type      string           `json:"type"`
	Artifacts []model.Artifact `json:"artifacts"`
	Context   string           `json:"context,omitempty"`
	Priority  int              `json:"priority,omitempty"`
}

// handleSubmit accepts an investigation and runs it asynchronously. The
// response carries the assigned ID; callers poll the status endpoint and
// fetch the stored result when it completes.
func handleSubmit(serverCtx context.Context, env *coreEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body submitRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.UserID == "" {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		if len(body.Artifacts) == 0 {
			writeError(w, http.StatusBadRequest, "at least one artifact is required")
			return
		}

		req := model.InvestigationRequest{
			ID:        uuid.NewString(),
			UserID:    body.UserID,
			Tier:      model.Tier(body.Tier),
			Type:      model.InvestigationType(body.Type),
			Artifacts: body.Artifacts,
			Context:   body.Context,
			Priority:  body.Priority,
			CreatedAt: time.Now().UTC(),
		}
		if !req.Tier.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown tier: %s", body.Tier))
			return
		}
		if !req.Type.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown investigation type: %s", body.Type))
			return
		}

		// Detach from the request context so the investigation survives the
		// client disconnecting; the server context still bounds it.
		go func() {
			if _, err := env.Engine.Conduct(serverCtx, req); err != nil {
				zap.L().Error("investigation failed",
					zap.String("id", req.ID),
					zap.String("user_id", req.UserID),
					zap.Error(err),
				)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     req.ID,
			"status": string(model.StatusQueued),
		})
	}
}

func handleGet(env *coreEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		result, err := env.Store.GetInvestigation(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "investigation not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "load investigation")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleStatus(env *coreEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if info, ok := env.Engine.Status(id); ok {
			writeJSON(w, http.StatusOK, info)
			return
		}
		// Not in flight: either complete (stored) or unknown.
		result, err := env.Store.GetInvestigation(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "investigation not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "load investigation")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":           result.ID,
			"status":       model.StatusComplete,
			"completed_at": result.CompletedAt,
		})
	}
}

func handleList(env *coreEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.ListFilter{
			UserID:      r.URL.Query().Get("user_id"),
			ThreatLevel: model.ThreatLevel(r.URL.Query().Get("threat_level")),
			Limit:       100,
		}
		results, err := env.Store.ListInvestigations(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list investigations")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"investigations": results})
	}
}

func handleModels(env *coreEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tier := model.Tier(r.URL.Query().Get("tier"))
		if tier == "" {
			tier = model.TierBasic
		}
		if !tier.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown tier: %s", tier))
			return
		}
		models, err := env.Engine.ListModels(tier)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list models")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tier": tier, "models": models})
	}
}

func handleQuote(env *coreEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model  string `json:"model"`
			Tokens int    `json:"tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		quote, err := env.Engine.QuoteCost(body.Model, body.Tokens)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"model":    body.Model,
			"tokens":   body.Tokens,
			"cost_usd": quote,
		})
	}
}

func handleBalance(env *coreEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "id")
		balance, err := env.Store.Balance(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load balance")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":     userID,
			"balance_usd": balance,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
