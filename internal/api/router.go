package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/fieldbase/fieldbase/internal/access"
	"github.com/fieldbase/fieldbase/internal/handlers"
	"github.com/fieldbase/fieldbase/internal/middleware"
	"github.com/fieldbase/fieldbase/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}

	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	checker, err := access.NewChecker(db)
	if err != nil {
		return nil, err
	}
	userSvc, err := services.NewUserService(db, audit)
	if err != nil {
		return nil, err
	}
	teamSvc, err := services.NewTeamService(db, audit)
	if err != nil {
		return nil, err
	}
	lockSvc, err := services.NewLockService(db, audit, checker)
	if err != nil {
		return nil, err
	}
	projectSvc, err := services.NewProjectService(db, audit, checker, lockSvc)
	if err != nil {
		return nil, err
	}
	grantSvc, err := services.NewGrantService(db, audit, checker)
	if err != nil {
		return nil, err
	}
	equipmentSvc, err := services.NewEquipmentService(db, audit, checker)
	if err != nil {
		return nil, err
	}
	installSvc, err := services.NewInstallService(db, audit, checker)
	if err != nil {
		return nil, err
	}

	userHandler := handlers.NewUserHandler(userSvc)
	teamHandler := handlers.NewTeamHandler(teamSvc)
	projectHandler := handlers.NewProjectHandler(projectSvc)
	grantHandler := handlers.NewGrantHandler(grantSvc)
	lockHandler := handlers.NewLockHandler(lockSvc)
	equipmentHandler := handlers.NewEquipmentHandler(equipmentSvc)
	installHandler := handlers.NewInstallHandler(installSvc)
	auditHandler := handlers.NewAuditHandler(audit)
	healthHandler := handlers.NewHealthHandler(db)

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.Actor())

	r.NoRoute(middleware.NotFoundHandler)

	// Health and metrics (public)
	r.GET("/healthz", healthHandler.Check)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(middleware.RequireActor())

	// Users
	users := api.Group("/users")
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.POST("", userHandler.Create)
		users.DELETE("/:id", userHandler.Deactivate)
	}

	// Teams
	teams := api.Group("/teams")
	{
		teams.POST("", teamHandler.Create)
		teams.GET("/:id", teamHandler.Get)
		teams.GET("/:id/members", teamHandler.ListMembers)
		teams.POST("/:id/members", teamHandler.AddMember)
		teams.DELETE("/:id/members/:userID", teamHandler.RemoveMember)
	}

	// Projects, grants and locks
	projects := api.Group("/projects")
	{
		projects.POST("", projectHandler.Create)
		projects.GET("", projectHandler.List)
		projects.GET("/:id", projectHandler.Get)
		projects.PUT("/:id/content", projectHandler.UpdateContent)

		projects.POST("/:id/grants", grantHandler.Grant)
		projects.DELETE("/:id/grants/:principalType/:principalID", grantHandler.Revoke)
		projects.GET("/:id/access", grantHandler.ListEffective)
		projects.GET("/:id/access/me", grantHandler.MyLevel)

		projects.POST("/:id/lock", lockHandler.Acquire)
		projects.DELETE("/:id/lock", lockHandler.Release)
		projects.GET("/:id/lock", lockHandler.Status)
		projects.GET("/:id/lock/history", lockHandler.History)

		projects.GET("/:id/equipment", equipmentHandler.ListByFleet)
		projects.GET("/:id/installs", installHandler.ListByProject)
		projects.GET("/:id/watchlist", installHandler.Watchlist)
	}

	// Equipment and installs
	equipment := api.Group("/equipment")
	{
		equipment.POST("", equipmentHandler.Register)
		equipment.GET("/:id", equipmentHandler.Get)
	}

	installs := api.Group("/installs")
	{
		installs.POST("", installHandler.Install)
		installs.GET("/:id", installHandler.Get)
		installs.POST("/:id/transition", installHandler.Transition)
		installs.POST("/:id/readings", installHandler.AddReading)
	}

	// Audit
	api.GET("/audit", auditHandler.List)

	return r, nil
}
