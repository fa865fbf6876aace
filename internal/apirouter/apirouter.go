// Package apirouter exposes the user directory over HTTP plus a health
// endpoint. The delivery core itself has no inbound surface; this API exists
// so the directory the core reads from can be managed.
package apirouter

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/heraldhq/herald/internal/civil"
	"github.com/heraldhq/herald/internal/idgen"
	"github.com/heraldhq/herald/internal/logging"
	"github.com/heraldhq/herald/internal/models"
	"github.com/heraldhq/herald/internal/userstore"
	"github.com/heraldhq/herald/internal/version"
	"github.com/heraldhq/herald/internal/worker"
)

type userRequest struct {
	FirstName   string  `json:"first_name" binding:"required"`
	LastName    string  `json:"last_name" binding:"required"`
	Email       string  `json:"email" binding:"required,email"`
	Birthday    string  `json:"birthday" binding:"required,datetime=2006-01-02"`
	Anniversary *string `json:"anniversary" binding:"omitempty,datetime=2006-01-02"`
	Timezone    string  `json:"timezone" binding:"required,timezone"`
	IsActive    *bool   `json:"is_active"`
}

func (r *userRequest) apply(user *models.User) {
	user.FirstName = r.FirstName
	user.LastName = r.LastName
	user.Email = r.Email
	user.Birthday = r.Birthday
	user.Anniversary = r.Anniversary
	user.Timezone = r.Timezone
	user.IsActive = r.IsActive == nil || *r.IsActive
}

type router struct {
	users  userstore.Store
	health *worker.HealthTracker
	logger *logging.Logger
}

// New builds the HTTP handler. The health tracker may be nil, in which case
// /healthz always reports healthy.
func New(users userstore.Store, health *worker.HealthTracker, logger *logging.Logger) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := &router{users: users, health: health, logger: logger}

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", r.healthz)

	userRoutes := engine.Group("/users")
	userRoutes.POST("", r.createUser)
	userRoutes.GET("", r.listUsers)
	userRoutes.GET("/:id", r.getUser)
	userRoutes.PUT("/:id", r.updateUser)
	userRoutes.DELETE("/:id", r.deleteUser)

	return engine
}

func (r *router) healthz(c *gin.Context) {
	if r.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": worker.StatusHealthy, "version": version.Version()})
		return
	}
	status := r.health.Status()
	status["version"] = version.Version()
	code := http.StatusOK
	if !r.health.IsHealthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (r *router) createUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err := validAnchors(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	user := &models.User{ID: idgen.NewUserID()}
	req.apply(user)

	if err := r.users.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, userstore.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		r.serverError(c, "creating user", err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (r *router) listUsers(c *gin.Context) {
	users, err := r.users.List(c.Request.Context())
	if err != nil {
		r.serverError(c, "listing users", err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	c.JSON(http.StatusOK, users)
}

func (r *router) getUser(c *gin.Context) {
	user, err := r.users.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.serverError(c, "finding user", err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (r *router) updateUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err := validAnchors(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	existing, err := r.users.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.serverError(c, "finding user", err)
		return
	}
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	req.apply(existing)
	if _, err := r.users.Update(c.Request.Context(), existing); err != nil {
		if errors.Is(err, userstore.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		r.serverError(c, "updating user", err)
		return
	}
	c.JSON(http.StatusOK, existing)
}

func (r *router) deleteUser(c *gin.Context) {
	deleted, err := r.users.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.serverError(c, "deleting user", err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// validAnchors rejects calendar-impossible dates the datetime binding lets
// through only in format, e.g. a birthday in the future is fine but
// "1990-02-30" is not.
func validAnchors(req *userRequest) error {
	if _, err := civil.ParseDate(req.Birthday); err != nil {
		return err
	}
	if req.Anniversary != nil && *req.Anniversary != "" {
		if _, err := civil.ParseDate(*req.Anniversary); err != nil {
			return err
		}
	}
	return nil
}

func (r *router) serverError(c *gin.Context, msg string, err error) {
	r.logger.Ctx(c.Request.Context()).Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
