package router

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toonsmith/backend/internal/auth"
	"github.com/toonsmith/backend/internal/billing"
	"github.com/toonsmith/backend/internal/dashboard"
	"github.com/toonsmith/backend/internal/handlers"
	"github.com/toonsmith/backend/internal/middleware"
)

// Deps is everything the route table needs.
type Deps struct {
	Auth       *auth.Handler
	Sessions   middleware.SessionValidator
	Credits    middleware.CreditReserver
	CronSecret string

	Projects   *handlers.ProjectHandler
	Characters *handlers.CharacterHandler
	Scenes     *handlers.SceneHandler
	Story      *handlers.StoryHandler
	Images     *handlers.ImageHandler
	Files      *handlers.FileHandler
	Dashboard  *dashboard.Handler
	Billing    *billing.Handler
	Webhook    http.Handler

	// Static serves stored objects under /files/ when storage is local.
	Static http.Handler
	Log    *slog.Logger
}

type chain []func(http.Handler) http.Handler

func (c chain) then(h http.HandlerFunc) http.Handler {
	var out http.Handler = h
	for i := len(c) - 1; i >= 0; i-- {
		out = c[i](out)
	}
	return out
}

// New returns the API handler. Every route is registered on one mux so the
// metrics middleware sees the matched pattern.
func New(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()

	session := chain{middleware.SessionAuth(d.Sessions, log)}
	paid := chain{middleware.SessionAuth(d.Sessions, log), middleware.CreditGate(d.Credits, log)}
	cron := chain{middleware.CronSecret(d.CronSecret, log)}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	if d.Static != nil {
		mux.Handle("GET /files/", http.StripPrefix("/files/", d.Static))
	}

	// auth
	mux.HandleFunc("POST /api/auth/callback", d.Auth.Callback)
	mux.HandleFunc("POST /api/auth/signout", d.Auth.SignOut)
	mux.Handle("GET /api/auth/me", session.then(d.Dashboard.GetMe))

	// projects
	mux.Handle("GET /api/projects", session.then(d.Projects.List))
	mux.Handle("POST /api/projects", session.then(d.Projects.Create))
	mux.Handle("PATCH /api/projects", session.then(d.Projects.Update))
	mux.Handle("DELETE /api/projects", session.then(d.Projects.Delete))
	mux.Handle("GET /api/projects/{id}/export", session.then(d.Files.Export))

	mux.Handle("GET /api/art-style", session.then(d.Projects.GetArtStyle))
	mux.Handle("POST /api/art-style", session.then(d.Projects.CreateArtStyle))
	mux.Handle("PATCH /api/art-style", session.then(d.Projects.UpdateArtStyle))

	// characters and scenes
	mux.Handle("GET /api/characters", session.then(d.Characters.List))
	mux.Handle("POST /api/characters", session.then(d.Characters.Create))
	mux.Handle("PATCH /api/characters", session.then(d.Characters.Update))

	mux.Handle("GET /api/generated-scenes", session.then(d.Scenes.List))
	mux.Handle("POST /api/generated-scenes", session.then(d.Scenes.Save))
	mux.Handle("PATCH /api/generated-scenes", session.then(d.Scenes.Update))
	mux.Handle("POST /api/delete-scene", session.then(d.Scenes.Delete))

	// story (LLM)
	mux.Handle("POST /api/analyze-story", session.then(d.Story.Analyze))
	mux.Handle("POST /api/generate-scenes", session.then(d.Story.GenerateScenes))
	mux.Handle("POST /api/insert-scene", session.then(d.Story.InsertScene))

	// images: each model call costs one credit
	mux.Handle("POST /api/generate-character-image", paid.then(d.Images.GenerateCharacterImage))
	mux.Handle("POST /api/generate-scene-image", paid.then(d.Images.GenerateSceneImage))
	mux.Handle("POST /api/edit-scene-image", paid.then(d.Images.EditSceneImage))
	mux.Handle("POST /api/remove-background", paid.then(d.Images.RemoveBackground))
	mux.Handle("POST /api/add-sound-effects", paid.then(d.Images.AddSoundEffects))
	mux.Handle("POST /api/save-scene-image", session.then(d.Images.SaveSceneImage))

	mux.Handle("POST /api/extract-text", session.then(d.Files.ExtractText))

	// credits and billing
	mux.Handle("GET /api/usage", session.then(d.Dashboard.GetUsage))
	mux.Handle("POST /api/usage", session.then(d.Dashboard.ReserveUsage))
	mux.Handle("GET /api/credit-ledger", session.then(d.Dashboard.ListCreditLedger))
	mux.Handle("POST /api/monthly-deposit", cron.then(d.Dashboard.MonthlyDeposit))

	mux.Handle("POST /api/create-checkout-session", session.then(d.Billing.CreateCheckoutSession))
	mux.Handle("POST /api/cancel-subscription", session.then(d.Billing.CancelSubscription))
	if d.Webhook != nil {
		mux.Handle("POST /api/webhooks/stripe", d.Webhook)
	}

	return middleware.Metrics(mux)
}
