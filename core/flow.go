package core

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

// Flow endpoints.
const (
	LoginPagePath       = "/ui/list"
	LoginProcessingPath = "/login"
	LoginSuccessPath    = "/ui/list"
	LoginFailurePath    = "/ui/list?error"
	LogoutPath          = "/logout"
	LogoutSuccessPath   = "/ui/list"
)

// FlowController runs form login and logout on top of the session store.
type FlowController struct {
	cfg  Config
	auth Authenticator
}

func NewFlowController(cfg Config, auth Authenticator) *FlowController {
	return &FlowController{cfg: cfg, auth: auth}
}

// Login authenticates the username/password form fields. On success it rotates
// the session, stores the principal and redirects to LoginSuccessPath regardless
// of any saved request. Every credential failure redirects to LoginFailurePath.
func (f *FlowController) Login(c *gin.Context) {
	ctx := c.Request.Context()
	log := FromContext(ctx)
	username := c.PostForm("username")
	password := c.PostForm("password")

	f.transition(c, StateAnonymous, StateAuthenticating)
	principal, err := f.auth.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, ErrAuthenticationFailure) {
			loginAttempts.WithLabelValues(outcomeFailure).Inc()
			log.Info().Err(err).Str("username", username).Msg("authentication failed")
			f.transition(c, StateAuthenticating, StateAnonymous)
			c.Redirect(http.StatusFound, LoginFailurePath)
			return
		}
		loginAttempts.WithLabelValues(outcomeError).Inc()
		log.Error().Err(err).Str("username", username).Msg("authentication error")
		f.transition(c, StateAuthenticating, StateAnonymous)
		renderError(c, http.StatusInternalServerError, "Login is temporarily unavailable.")
		return
	}

	session, err := f.rotate(c)
	if err != nil {
		loginAttempts.WithLabelValues(outcomeError).Inc()
		log.Error().Err(err).Msg("rotate session")
		renderError(c, http.StatusInternalServerError, "Login is temporarily unavailable.")
		return
	}

	principal.EraseCredentials()
	session.Values[sessionKeyUsername] = principal.Username()
	session.Values[sessionKeyAuthorities] = principal.Authorities()
	applySessionOptions(f.cfg, session)
	if err := session.Save(c.Request, c.Writer); err != nil {
		loginAttempts.WithLabelValues(outcomeError).Inc()
		log.Error().Err(err).Msg("save session")
		renderError(c, http.StatusInternalServerError, "Login is temporarily unavailable.")
		return
	}
	c.Set(ctxKeyPrincipal, principal)

	loginAttempts.WithLabelValues(outcomeSuccess).Inc()
	log.Info().Str("username", principal.Username()).Msg("login succeeded")
	f.transition(c, StateAuthenticating, StateAuthenticated)
	c.Redirect(http.StatusFound, LoginSuccessPath)
}

// rotate discards the pre-login session so its identifier cannot be fixed by an attacker.
func (f *FlowController) rotate(c *gin.Context) (*sessions.Session, error) {
	session := sessionFrom(c)
	if session == nil {
		return nil, errors.New("no session in request")
	}
	if d, ok := session.Store().(SessionDestroyer); ok {
		if err := d.Destroy(c.Request.Context(), session); err != nil {
			return nil, err
		}
	}
	session.ID = ""
	session.IsNew = true
	session.Values = map[interface{}]interface{}{}
	return session, nil
}

// Logout clears the principal, invalidates the session, expires the cookie and
// redirects to LogoutSuccessPath. Anonymous callers get the same redirect.
func (f *FlowController) Logout(c *gin.Context) {
	session := sessionFrom(c)
	if session != nil {
		from := StateOf(session)
		session.Values = map[interface{}]interface{}{}
		applySessionOptions(f.cfg, session)
		session.Options.MaxAge = -1
		if err := session.Save(c.Request, c.Writer); err != nil {
			FromContext(c.Request.Context()).Error().Err(err).Msg("invalidate session")
			renderError(c, http.StatusInternalServerError, "Logout failed.")
			return
		}
		c.Set(ctxKeyPrincipal, (*MemberPrincipal)(nil))
		f.transition(c, from, StateLoggedOut)
	}
	c.Redirect(http.StatusFound, LogoutSuccessPath)
}

func (f *FlowController) transition(c *gin.Context, from, to AuthState) {
	FromContext(c.Request.Context()).Debug().
		Stringer("from", from).
		Stringer("to", to).
		Msg("auth state")
}
