// Command vinoteca-web is the browser shell of the storefront. It serves the
// login entry points, drives the redirect flow against the identity
// authority, and proxies the catalog, profile, and pairing endpoints the UI
// calls.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/franduoc2023/vinoteca/appauth"
	"github.com/franduoc2023/vinoteca/internal/config"
	"github.com/franduoc2023/vinoteca/internal/metrics"
	"github.com/franduoc2023/vinoteca/middleware"
	"github.com/franduoc2023/vinoteca/platform"
	"github.com/franduoc2023/vinoteca/returnurl"
	"github.com/franduoc2023/vinoteca/services"
	"github.com/franduoc2023/vinoteca/tokenstore"
	"github.com/franduoc2023/vinoteca/webauth"
)

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("vinoteca-web failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	config.LoadEnv("")
	env, err := config.FromEnv()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	var returnURLs returnurl.Store = returnurl.NewMemStore()
	if env.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: env.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis at %s: %w", env.RedisAddr, err)
		}
		returnURLs = returnurl.NewRedisStore(rdb)
		slog.Info("using redis return-url store", slog.String("addr", env.RedisAddr))
	}

	store := tokenstore.New()
	authority := env.Authority()
	flow, err := webauth.New(ctx, webauth.Config{
		Authority:   &authority,
		ClientID:    env.ClientID,
		RedirectURI: env.RedirectURI,
		Store:       store,
		ReturnURLs:  returnURLs,
		Metrics:     m,
	})
	if err != nil {
		return err
	}

	manager, err := appauth.New(appauth.Config{
		Platform: platform.Web,
		Web:      flow,
		Store:    store,
	})
	if err != nil {
		return err
	}

	catalog := services.NewCatalogClient(env.CatalogAPIBaseURL, nil)
	users := services.NewUserClient(env.UserAPIBaseURL, flow)
	pairings := services.NewPairingsClient(env.PairingsAPIBaseURL, flow)

	guard := &middleware.Guard{Session: flow, LoginURL: "/login"}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/login", flow.Login)
	r.Get("/auth/callback", flow.HandleRedirect)
	r.Get("/logout", flow.Logout)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Get("/api/wines", func(w http.ResponseWriter, req *http.Request) {
		wines, err := catalog.GetWines(req.Context())
		writeJSON(w, wines, err)
	})
	r.Get("/api/cheeses", func(w http.ResponseWriter, req *http.Request) {
		cheeses, err := catalog.GetCheeses(req.Context())
		writeJSON(w, cheeses, err)
	})
	r.Post("/api/pairings/chat", func(w http.ResponseWriter, req *http.Request) {
		var preq services.PairingRequest
		if err := json.NewDecoder(req.Body).Decode(&preq); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res, err := pairings.Chat(req.Context(), preq)
		writeJSON(w, res, err)
	})
	r.Get("/api/pairings/history", func(w http.ResponseWriter, req *http.Request) {
		items, err := pairings.GetHistory(req.Context())
		writeJSON(w, items, err)
	})

	r.Group(func(r chi.Router) {
		r.Use(guard.Wrap)
		r.Get("/home", func(w http.ResponseWriter, req *http.Request) {
			p, _ := middleware.ProfileFromContext(req.Context())
			writeJSON(w, p, nil)
		})
		r.Get("/api/me", func(w http.ResponseWriter, req *http.Request) {
			p, err := users.GetMyProfile(req.Context())
			writeJSON(w, p, err)
		})
		r.Put("/api/me", func(w http.ResponseWriter, req *http.Request) {
			var ureq services.UpdateUserProfileRequest
			if err := json.NewDecoder(req.Body).Decode(&ureq); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			p, err := users.UpdateMyProfile(req.Context(), ureq)
			writeJSON(w, p, err)
		})
		r.Get("/api/me/wishlist", func(w http.ResponseWriter, req *http.Request) {
			items, err := users.GetMyWishlist(req.Context())
			writeJSON(w, items, err)
		})
		r.Post("/api/me/wishlist", func(w http.ResponseWriter, req *http.Request) {
			var wreq struct {
				ProductID   string `json:"productId"`
				ProductType string `json:"productType"`
			}
			if err := json.NewDecoder(req.Body).Decode(&wreq); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			item, err := users.AddToWishlist(req.Context(), wreq.ProductID, wreq.ProductType)
			writeJSON(w, item, err)
		})
		r.Delete("/api/me/wishlist/{id}", func(w http.ResponseWriter, req *http.Request) {
			err := users.RemoveFromWishlist(req.Context(), chi.URLParam(req, "id"))
			writeJSON(w, map[string]bool{"ok": err == nil}, err)
		})
	})

	srv := &http.Server{
		Addr:              env.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("vinoteca-web listening",
			slog.String("addr", env.ListenAddr),
			slog.String("platform", string(manager.Platform())))
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, v any, err error) {
	if err != nil {
		slog.Error("request failed", slog.String("err", err.Error()))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
