package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pubdetect/internal/ids"
	"pubdetect/internal/models"
	"pubdetect/internal/repository"
	"pubdetect/internal/security"
)

const sessionKey = "client_session"

// touchEvery limits how often a read-only request rewrites the record.
const touchEvery = time.Minute

type SessionOptions struct {
	CookieName string
	Secret     string
	TTL        time.Duration
	Secure     bool
}

// Session resolves the browser's client-state record from its signed
// cookie, creating a fresh anonymous one when absent or invalid.
func Session(store repository.SessionStore, opts SessionOptions, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		now := time.Now().UTC()

		var (
			session models.ClientSession
			found   bool
		)
		if raw, err := c.Cookie(opts.CookieName); err == nil {
			if id, ok := security.OpenValue(opts.Secret, raw); ok && ids.Valid(id) {
				s, err := store.Get(ctx, id)
				switch {
				case err == nil:
					session, found = s, true
				case !errors.Is(err, repository.ErrSessionNotFound):
					log.Error().Err(err).Msg("load session failed")
					c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
					return
				}
			}
		}

		dirty := false
		if !found {
			session = models.ClientSession{ID: ids.New(), CreatedAt: now, LastSeenAt: now}
			dirty = true
		} else if now.Sub(session.LastSeenAt) > touchEvery {
			session.LastSeenAt = now
			dirty = true
		}

		if dirty {
			if err := store.Save(ctx, session); err != nil {
				log.Error().Err(err).Msg("save session failed")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
				return
			}
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(opts.CookieName, security.SealValue(opts.Secret, session.ID), int(opts.TTL.Seconds()), "/", "", opts.Secure, true)
		}

		c.Set(sessionKey, &session)
		c.Next()
	}
}

// CurrentSession is the record loaded by Session, or nil outside it.
func CurrentSession(c *gin.Context) *models.ClientSession {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	session, _ := v.(*models.ClientSession)
	return session
}
