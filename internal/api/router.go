package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Handlers             *Handlers
	AuthHandlers         *AuthHandlers
	ConversationHandlers *ConversationHandlers
	JWTService           *auth.JWTService
	WebDir               string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	requireAuth := middleware.AuthMiddleware(cfg.JWTService)
	requireAdmin := middleware.RequireRole(middleware.RoleAdmin)
	h, ah, ch := cfg.Handlers, cfg.AuthHandlers, cfg.ConversationHandlers

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// long-lived websocket connections are exempt from the timeout
		r.With(requireAuth).Get("/conversations/ws", ch.Connect)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(30 * time.Second))

			r.Route("/auth", func(r chi.Router) {
				r.Post("/register", ah.Register)
				r.Post("/login", ah.Login)
				r.Post("/logout", ah.Logout)
				r.Post("/refresh", ah.Refresh)
				r.Post("/forgot-password", ah.ForgotPassword)
				r.Post("/reset-password", ah.ResetPassword)

				r.With(requireAuth).Get("/me", ah.Me)
				r.With(requireAuth).Put("/password", ah.ChangePassword)
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", ah.Me)
				r.Put("/me", ah.UpdateMe)

				r.Group(func(r chi.Router) {
					r.Use(requireAdmin)
					r.Get("/", ah.ListUsers)
					r.Get("/{id}", ah.GetUser)
					r.Put("/{id}/role", ah.SetUserRole)
					r.Delete("/{id}", ah.DeleteUser)
				})
			})

			r.Route("/products", func(r chi.Router) {
				r.Get("/", h.ListProducts)
				r.Get("/{id}", h.GetProduct)

				r.Group(func(r chi.Router) {
					r.Use(requireAuth)
					r.Post("/{id}/reviews", h.AddReview)
					r.Delete("/{id}/reviews", h.DeleteReview)
				})

				r.Group(func(r chi.Router) {
					r.Use(requireAuth, requireAdmin)
					r.Get("/export", h.ExportProducts)
					r.Post("/", h.CreateProduct)
					r.Put("/{id}", h.UpdateProduct)
					r.Delete("/{id}", h.DeleteProduct)
				})
			})

			r.Route("/cart", func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/", h.GetCart)
				r.Delete("/", h.ClearCart)
				r.Post("/items", h.AddToCart)
				r.Put("/items/{itemID}", h.UpdateCartItem)
				r.Delete("/items/{itemID}", h.RemoveFromCart)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", h.PlaceOrder)
				r.Get("/", h.GetOrders)
				r.Get("/{id}", h.GetOrder)
				r.Post("/{id}/cancel", h.CancelOrder)

				r.Group(func(r chi.Router) {
					r.Use(requireAdmin)
					r.Get("/all", h.GetAllOrders)
					r.Put("/{id}/status", h.UpdateOrderStatus)
					r.Delete("/{id}", h.DeleteOrder)
				})
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/mine", ch.GetMine)
				r.Post("/mine/messages", ch.PostMine)
				r.Post("/mine/read", ch.ReadMine)

				r.Group(func(r chi.Router) {
					r.Use(requireAdmin)
					r.Get("/", ch.List)
					r.Get("/unread", ch.UnreadCount)
					r.Get("/{id}", ch.Get)
					r.Post("/{id}/messages", ch.Reply)
					r.Post("/{id}/read", ch.MarkRead)
					r.Put("/{id}/status", ch.SetStatus)
				})
			})

			r.With(requireAuth, requireAdmin).Get("/admin/dashboard", h.Dashboard)
		})
	})

	if cfg.WebDir != "" {
		r.NotFound(spaHandler(cfg.WebDir))
	}

	return r
}

// spaHandler serves files from dir and falls back to index.html so that
// client-side routes survive a reload. Unknown /api paths stay 404.
func spaHandler(dir string) http.HandlerFunc {
	fs := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			respondJSONError(w, "not found", http.StatusNotFound)
			return
		}
		path := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	}
}
