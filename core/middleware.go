package core

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const sessionMaxAge = 18000 // 5h

// gin context keys
const (
	ctxKeySession   = "session"
	ctxKeyPrincipal = "principal"
	ctxKeyCSRF      = "csrf_token"
)

const (
	csrfHeader    = "X-CSRF-Token"
	csrfFormField = "_csrf"
)

// SessionMiddleware loads the session, applies cookie options and restores the principal it holds.
func SessionMiddleware(cfg Config, store sessions.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := store.Get(c.Request, cfg.SessionCookieName)
		if err != nil {
			FromContext(c.Request.Context()).Warn().Err(err).Msg("session unreadable, starting a new one")
			if session == nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
				c.Abort()
				return
			}
		}

		applySessionOptions(cfg, session)
		c.Set(ctxKeySession, session)
		if p, ok := principalFromSession(session); ok {
			c.Set(ctxKeyPrincipal, p)
		}
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *sessions.Session {
	v, _ := c.Get(ctxKeySession)
	s, _ := v.(*sessions.Session)
	return s
}

// PrincipalFrom returns the principal of the current request, if authenticated.
func PrincipalFrom(c *gin.Context) (*MemberPrincipal, bool) {
	v, _ := c.Get(ctxKeyPrincipal)
	p, _ := v.(*MemberPrincipal)
	return p, p != nil
}

// OriginRefererMiddleware validates Origin/Referer against the serving host and allowed list.
func OriginRefererMiddleware(cfg Config) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}

	isAllowed := func(origin, host string) bool {
		if origin == "" {
			// Same-origin navigation (no Origin header) is allowed.
			return true
		}
		if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, host) {
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		referer := c.GetHeader("Referer")
		if origin == "" && referer != "" {
			if u, err := url.Parse(referer); err == nil {
				origin = u.Scheme + "://" + u.Host
			}
		}

		if !isAllowed(origin, c.Request.Host) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
			c.Abort()
			return
		}

		if c.Request.Method == http.MethodOptions && origin != "" {
			setCORSHeaders(c, origin)
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if origin != "" {
			setCORSHeaders(c, origin)
		}
		c.Next()
	}
}

func setCORSHeaders(c *gin.Context, origin string) {
	c.Header("Access-Control-Allow-Origin", origin)
	c.Header("Vary", "Origin")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Headers", "Content-Type, "+csrfHeader)
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

// CSRFMiddleware issues a per-session token and checks it on unsafe methods.
// The token may arrive in the X-CSRF-Token header or the _csrf form field.
func CSRFMiddleware(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessionFrom(c)
		if session == nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
			c.Abort()
			return
		}

		token, err := ensureCSRFToken(cfg, c, session)
		if err != nil {
			FromContext(c.Request.Context()).Error().Err(err).Msg("issue csrf token")
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to issue csrf token")
			c.Abort()
			return
		}

		if !isSafeMethod(c.Request.Method) {
			sent := c.GetHeader(csrfHeader)
			if sent == "" {
				sent = c.PostForm(csrfFormField)
			}
			if sent == "" || subtle.ConstantTimeCompare([]byte(sent), []byte(token)) != 1 {
				respondError(c, http.StatusForbidden, "FORBIDDEN", "invalid csrf token")
				c.Abort()
				return
			}
		}

		c.Writer.Header().Set(csrfHeader, token)
		c.Next()
	}
}

// ensureCSRFToken returns the session token, issuing and saving one when absent.
func ensureCSRFToken(cfg Config, c *gin.Context, session *sessions.Session) (string, error) {
	token, _ := session.Values[sessionKeyCSRF].(string)
	if token == "" {
		var err error
		token, err = randomToken(32)
		if err != nil {
			return "", err
		}
		session.Values[sessionKeyCSRF] = token
		applySessionOptions(cfg, session)
		if err := session.Save(c.Request, c.Writer); err != nil {
			return "", err
		}
	}
	c.Set(ctxKeyCSRF, token)
	return token, nil
}

func csrfTokenFrom(c *gin.Context) string {
	return c.GetString(ctxKeyCSRF)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

// AuthorizationMiddleware redirects anonymous requests for protected paths to loginPath,
// remembering the requested URI in the session.
func AuthorizationMiddleware(policy *RoutePolicy, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if policy.Evaluate(c.Request.URL.Path) != RequiresAuthentication {
			c.Next()
			return
		}
		if _, ok := PrincipalFrom(c); ok {
			c.Next()
			return
		}

		if session := sessionFrom(c); session != nil {
			session.Values[sessionKeySavedRequest] = c.Request.URL.RequestURI()
			if err := session.Save(c.Request, c.Writer); err != nil {
				FromContext(c.Request.Context()).Warn().Err(err).Msg("save requested uri")
			}
		}
		authorizationRedirects.Inc()
		c.Redirect(http.StatusFound, loginPath)
		c.Abort()
	}
}

func applySessionOptions(cfg Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.MaxAge = sessionMaxAge
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
