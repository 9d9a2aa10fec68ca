package main

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Golfwang123/CivicVoicev1/internal/handlers"
	"github.com/Golfwang123/CivicVoicev1/internal/logger"
	"github.com/Golfwang123/CivicVoicev1/internal/mailer"
	"github.com/Golfwang123/CivicVoicev1/internal/middleware"
	"github.com/Golfwang123/CivicVoicev1/internal/store"
	"github.com/Golfwang123/CivicVoicev1/internal/store/memstore"
	"github.com/Golfwang123/CivicVoicev1/internal/store/postgres"
)

func main() {
	godotenv.Load()

	logger.Initialize(logger.Configuration{
		LogFile: os.Getenv("LOG_FILE"),
		Level:   os.Getenv("LOG_LEVEL"),
		Console: true,
	})

	var st store.Store
	if os.Getenv("DATABASE_URL") != "" {
		pg, err := postgres.New()
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pg.Close()
		st = pg
		logger.Info("using postgres store")
	} else {
		st = memstore.New()
		logger.Info("using in-memory store, data is lost on restart")
	}

	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		sessionSecret = "default-secret-key-change-in-production"
	}

	sessionStore := sessions.NewCookieStore([]byte(sessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
	}

	var dispatcher mailer.Dispatcher
	if smtp := mailer.NewSMTPDispatcher(); smtp != nil {
		dispatcher = smtp
		logger.Info("using SMTP dispatcher", zap.String("host", smtp.Host))
	} else {
		dispatcher = mailer.LogDispatcher{}
		logger.Info("SMTP_HOST not set, emails are logged only")
	}

	h := handlers.New(st, sessionStore, dispatcher)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	r.Get("/", h.Home)
	r.Get("/register", h.RegisterPage)
	r.Post("/register", h.RegisterSubmit)
	r.Get("/login", h.LoginPage)
	r.Post("/login", h.LoginSubmit)
	r.Get("/logout", h.Logout)

	r.Get("/submit", h.SubmitPage)
	r.Post("/submit", h.SubmitProject)
	r.Get("/projects", h.ProjectsPage)
	r.Get("/projects/{id}", h.ProjectDetail)
	r.Post("/projects/{id}/upvote", h.UpvoteSubmit)
	r.Post("/projects/{id}/email", h.EmailSubmit)
	r.Post("/projects/{id}/comments", h.CommentSubmit)

	r.Get("/map", h.MapPage)
	r.Get("/api/map/data", h.MapData)
	r.Get("/api/map/popup/{id}", h.ProjectPopup)
	r.Get("/api/stats", h.StatsAPI)
	r.Get("/api/activity", h.ActivityAPI)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(sessionStore))
		r.Post("/admin/projects/{id}/status", h.AdminStatusUpdate)
	})

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = "0.0.0.0:5000"
	}

	logger.Info("server starting", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
