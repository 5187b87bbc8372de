package auth

import (
	"log"
	"net/http"
	"time"

	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/models"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/markbates/goth/gothic"
	"gorm.io/gorm"
)

// withProvider injects the provider path parameter as the query parameter
// gothic expects.
func withProvider(c *gin.Context) {
	q := c.Request.URL.Query()
	q.Set("provider", c.Param("provider"))
	c.Request.URL.RawQuery = q.Encode()
}

// HandleLogin initiates the OAuth flow for the provider in the URL
func HandleLogin(c *gin.Context) {
	withProvider(c)
	gothic.BeginAuthHandler(c.Writer, c.Request)
}

// HandleCallback completes the OAuth flow, upserts the user and their auth
// identity, and stores info in the session. ORCID logins record the ORCID iD
// on the user row.
func HandleCallback(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		withProvider(c)
		provider := c.Param("provider")

		gothUser, err := gothic.CompleteUserAuth(c.Writer, c.Request)
		if err != nil {
			log.Printf("Auth error: %v", err)
			c.Redirect(http.StatusFound, "/login?error=auth_failed")
			return
		}

		now := time.Now()
		var user models.User
		result := db.Where("email = ?", gothUser.Email).First(&user)
		if result.Error == gorm.ErrRecordNotFound {
			user = models.User{
				Email:       gothUser.Email,
				Name:        gothUser.Name,
				LastLoginAt: &now,
			}
			if provider == "orcid" {
				user.OrcidID = gothUser.UserID
			}
			if err := db.Create(&user).Error; err != nil {
				log.Printf("User create error: %v", err)
				c.Redirect(http.StatusFound, "/login?error=user_failed")
				return
			}
		} else if result.Error == nil {
			updates := map[string]interface{}{
				"name":          gothUser.Name,
				"last_login_at": now,
			}
			if provider == "orcid" && user.OrcidID == "" {
				updates["orcid_id"] = gothUser.UserID
			}
			db.Model(&user).Updates(updates)
		} else {
			log.Printf("User lookup error: %v", result.Error)
			c.Redirect(http.StatusFound, "/login?error=user_failed")
			return
		}

		upsertIdentity(db, user.ID, provider, gothUser.UserID, gothUser.AccessToken, gothUser.RefreshToken, gothUser.ExpiresAt)

		session := sessions.Default(c)
		session.Set("user_id", user.ID)
		session.Set("user_email", user.Email)
		session.Set("user_name", user.Name)

		if err := session.Save(); err != nil {
			log.Printf("Session save error: %v", err)
			c.Redirect(http.StatusFound, "/login?error=session_failed")
			return
		}

		log.Printf("User authenticated: %s via %s", user.Email, provider)
		c.Redirect(http.StatusFound, "/")
	}
}

// upsertIdentity records the OAuth identity with its tokens. Tokens are
// encrypted at rest by the AuthIdentity model hooks.
func upsertIdentity(db *gorm.DB, userID uint, provider, providerUserID, accessToken, refreshToken string, expiresAt time.Time) {
	var identity models.AuthIdentity
	result := db.Where("provider = ? AND provider_user_id = ?", provider, providerUserID).First(&identity)

	var expiry *time.Time
	if !expiresAt.IsZero() {
		expiry = &expiresAt
	}

	if result.Error == gorm.ErrRecordNotFound {
		identity = models.AuthIdentity{
			UserID:         userID,
			Provider:       provider,
			ProviderUserID: providerUserID,
			AccessToken:    accessToken,
			RefreshToken:   refreshToken,
			TokenExpiry:    expiry,
		}
		if err := db.Create(&identity).Error; err != nil {
			log.Printf("Identity create error: %v", err)
		}
		return
	} else if result.Error != nil {
		log.Printf("Identity lookup error: %v", result.Error)
		return
	}

	identity.AccessToken = accessToken
	identity.RefreshToken = refreshToken
	identity.TokenExpiry = expiry
	if err := db.Save(&identity).Error; err != nil {
		log.Printf("Identity update error: %v", err)
	}
}

// HandleLogout clears the session and redirects to login
func HandleLogout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()

	if err := session.Save(); err != nil {
		log.Printf("Session clear error: %v", err)
	}

	c.Redirect(http.StatusFound, "/login")
}
