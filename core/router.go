package core

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"sync"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed templates/*.html
var templateFS embed.FS

// RegisterForm is the registration form payload.
type RegisterForm struct {
	Username string `form:"username" binding:"required,max=100,username"`
	Password string `form:"password" binding:"required,max=72"`
	Name     string `form:"name" binding:"max=100"`
	Age      int    `form:"age" binding:"gte=0,lte=150"`
	Email    string `form:"email" binding:"omitempty,email,max=255"`
}

var registerValidatorsOnce sync.Once

func registerValidators() {
	registerValidatorsOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("username", validUsername)
		}
	})
}

// validUsername rejects whitespace and control characters.
func validUsername(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// NewRouter constructs the Gin engine with routes wired. Sessions live in Redis
// so that logout revokes them server-side.
func NewRouter(cfg Config, store *RedisStore, credentials *CredentialStore, hasher PasswordHasher, policy *RoutePolicy, logger *Logger, checks ...HealthCheck) *gin.Engine {
	startedAt := time.Now()
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))

	// Global middleware: logging -> origin/CORS -> session -> CSRF -> authorization
	r.Use(RequestLogger(logger))
	r.Use(OriginRefererMiddleware(cfg))
	r.Use(SessionMiddleware(cfg, store))
	if cfg.CSRFEnabled {
		r.Use(CSRFMiddleware(cfg))
	}
	r.Use(AuthorizationMiddleware(policy, LoginPagePath))

	flow := NewFlowController(cfg, NewCredentialAuthenticator(credentials, hasher))
	limiter := NewLoginLimiter(cfg.LoginRatePerMinute)

	r.GET("/healthz", func(c *gin.Context) {
		st := CollectSystemStatus(c.Request.Context(), checks, startedAt)
		if !st.Healthy() {
			c.JSON(http.StatusServiceUnavailable, st)
			return
		}
		c.JSON(http.StatusOK, st)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, LoginPagePath)
	})

	r.GET(LoginPagePath, func(c *gin.Context) {
		p, _ := PrincipalFrom(c)
		_, loginError := c.GetQuery("error")
		c.HTML(http.StatusOK, "list.html", gin.H{
			"Principal":  p,
			"LoginError": loginError,
			"CSRFToken":  csrfTokenFrom(c),
		})
	})

	r.POST(LoginProcessingPath, limiter.Middleware("username"), flow.Login)
	r.GET(LogoutPath, flow.Logout)

	r.GET("/register", func(c *gin.Context) {
		renderRegister(c, http.StatusOK, RegisterForm{}, "")
	})

	r.POST("/register", func(c *gin.Context) {
		log := FromContext(c.Request.Context())

		var form RegisterForm
		if err := c.ShouldBind(&form); err != nil {
			registrations.WithLabelValues(outcomeInvalid).Inc()
			renderRegister(c, http.StatusBadRequest, form, validationMessage(err))
			return
		}

		m, err := credentials.Register(c.Request.Context(), RegisterRequest{
			Username: form.Username,
			Password: form.Password,
			Name:     form.Name,
			Age:      form.Age,
			Email:    form.Email,
		})
		switch {
		case errors.Is(err, ErrDuplicateUsername):
			registrations.WithLabelValues(outcomeDuplicate).Inc()
			renderRegister(c, http.StatusConflict, form, "username is already taken")
			return
		case errors.Is(err, ErrInvalidRegistration):
			registrations.WithLabelValues(outcomeInvalid).Inc()
			renderRegister(c, http.StatusBadRequest, form, err.Error())
			return
		case err != nil:
			registrations.WithLabelValues(outcomeError).Inc()
			log.Error().Err(err).Str("username", form.Username).Msg("registration failed")
			renderError(c, http.StatusInternalServerError, "Registration is temporarily unavailable.")
			return
		}

		registrations.WithLabelValues(outcomeSuccess).Inc()
		log.Info().Int64("member_id", m.ID).Str("username", m.Username).Msg("member registered")
		c.Redirect(http.StatusFound, LoginPagePath)
	})

	api := r.Group("/api")
	{
		api.GET("/me", func(c *gin.Context) {
			p, ok := PrincipalFrom(c)
			if !ok {
				respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}
			c.JSON(http.StatusOK, gin.H{"username": p.Username(), "authorities": p.Authorities()})
		})

		admin := api.Group("/admin", RequireAuthority(AuthorityPrefix+RoleAdmin))
		admin.GET("/members", func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			items, total, err := credentials.List(c.Request.Context(), page, perPage)
			if err != nil {
				FromContext(c.Request.Context()).Error().Err(err).Msg("list members")
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to list members")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"items":       items,
				"page":        page,
				"per_page":    perPage,
				"total":       total,
				"total_pages": calcTotalPages(total, perPage),
			})
		})
	}

	r.GET("/book/list", func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.Redirect(http.StatusFound, LoginPagePath)
			return
		}
		c.HTML(http.StatusOK, "book.html", gin.H{"Principal": p})
	})

	return r
}

func renderRegister(c *gin.Context, status int, form RegisterForm, message string) {
	form.Password = ""
	c.HTML(status, "register.html", gin.H{
		"Form":      form,
		"Error":     message,
		"CSRFToken": csrfTokenFrom(c),
	})
}

func renderError(c *gin.Context, status int, message string) {
	c.HTML(status, "error.html", gin.H{"Message": message})
}
