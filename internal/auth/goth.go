package auth

import (
	"log"
	"net/http"

	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/config"
	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
	"github.com/markbates/goth/providers/openidConnect"
)

// orcidDiscoveryURL is the OpenID Connect discovery document for ORCID.
const orcidDiscoveryURL = "https://orcid.org/.well-known/openid-configuration"

// InitProviders initializes Goth OAuth providers. ORCID is wired through the
// generic OpenID Connect provider; Google is optional secondary sign-in.
func InitProviders(cfg *config.Config) {
	// Configure Gothic's session store to match our app session settings.
	// Gothic uses its own gorilla/sessions store separate from gin-contrib/sessions.
	// The default has Secure=true which breaks localhost (plain HTTP).
	gothStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	gothStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		Secure:   cfg.Env == "production",
		SameSite: http.SameSiteLaxMode,
	}
	gothic.Store = gothStore

	var providers []goth.Provider

	if cfg.OrcidClientID != "" {
		orcid, err := openidConnect.NewNamed(
			"orcid",
			cfg.OrcidClientID,
			cfg.OrcidClientSecret,
			cfg.OrcidCallbackURL,
			orcidDiscoveryURL,
			"openid",
		)
		if err != nil {
			log.Printf("WARNING: failed to configure ORCID provider: %v", err)
		} else {
			providers = append(providers, orcid)
		}
	}

	if cfg.GoogleClientID != "" {
		providers = append(providers, google.New(
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.GoogleCallbackURL,
			"email",
			"profile",
		))
	}

	if len(providers) == 0 {
		log.Println("WARNING: no OAuth credentials set. Login will not work until ORCID_CLIENT_ID or GOOGLE_CLIENT_ID is configured.")
		return
	}

	goth.UseProviders(providers...)
	log.Printf("Goth providers initialized: %d configured", len(providers))
}
