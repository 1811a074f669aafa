package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/nimbus-edu/timetable-api/api/swagger"
	"github.com/nimbus-edu/timetable-api/internal/handler"
	"github.com/nimbus-edu/timetable-api/internal/middleware"
	"github.com/nimbus-edu/timetable-api/internal/repository"
	"github.com/nimbus-edu/timetable-api/internal/service"
	"github.com/nimbus-edu/timetable-api/pkg/cache"
	"github.com/nimbus-edu/timetable-api/pkg/config"
	"github.com/nimbus-edu/timetable-api/pkg/database"
	"github.com/nimbus-edu/timetable-api/pkg/logger"
	corsmiddleware "github.com/nimbus-edu/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/nimbus-edu/timetable-api/pkg/middleware/requestid"
	"github.com/nimbus-edu/timetable-api/pkg/storage"
)

// @title Timetable API
// @version 1.0.0
// @description Multi-tenant timetable scheduling and conflict resolution engine
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		if cfg.Cache.Enabled {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()

	timetableRepo := repository.NewTimetableRepository(db)
	timeSlotRepo := repository.NewTimeSlotRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	qualificationRepo := repository.NewQualificationRepository(db)
	assignmentRepo := repository.NewClassAssignmentRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	auditSvc := service.NewAuditService(userRepo, cfg.Audit, logr)
	auditSvc.Start(context.Background())
	defer auditSvc.Stop()

	authSvc := service.NewAuthService(userRepo, cfg.JWT, auditSvc, validate, logr)
	timetableSvc := service.NewTimetableService(service.TimetableServiceDeps{
		Entries:        timetableRepo,
		Slots:          timeSlotRepo,
		Classes:        classRepo,
		Subjects:       subjectRepo,
		Teachers:       teacherRepo,
		Qualifications: qualificationRepo,
		Availability:   availabilityRepo,
		Assignments:    assignmentRepo,
		Checker:        service.NewConflictValidator(cfg.Scheduling),
		Cache:          cacheRepo,
		CacheConfig:    cfg.Cache,
		Audit:          auditSvc,
		Metrics:        metricsSvc,
		Validator:      validate,
		Logger:         logr,
	})
	timeSlotSvc := service.NewTimeSlotService(timeSlotRepo, timetableRepo, classRepo, auditSvc, validate, logr)
	availabilitySvc := service.NewAvailabilityService(availabilityRepo, teacherRepo, validate, logr)
	qualificationSvc := service.NewQualificationService(qualificationRepo, assignmentRepo, teacherRepo, subjectRepo, classRepo, cacheRepo, cfg.Cache, validate, logr)

	exportStore, err := storage.NewLocalStorage(cfg.Export.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export store", "error", err)
	}
	exportSigner := storage.NewSignedURLSigner(cfg.JWT.Secret, cfg.Export.URLTTL)
	exportSvc := service.NewExportService(timetableSvc, classRepo, exportStore, exportSigner, logr)
	exportSvc.CleanupExpired(cfg.Export.URLTTL)
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			exportSvc.CleanupExpired(cfg.Export.URLTTL)
		}
	}()

	authHandler := handler.NewAuthHandler(authSvc)
	timetableHandler := handler.NewTimetableHandler(timetableSvc, exportSvc)
	timeSlotHandler := handler.NewTimeSlotHandler(timeSlotSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	qualificationHandler := handler.NewQualificationHandler(qualificationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Token-authorized download; the signed token is the credential.
	api.GET("/timetable/exports/:token", timetableHandler.DownloadExport)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.GET("/me", middleware.Authenticate(authSvc), authHandler.Me)

	protected := api.Group("")
	protected.Use(middleware.Authenticate(authSvc))

	protected.GET("/metrics", middleware.RequireCapability(middleware.CapMetricsRead), metricsHandler.Scrape)

	templates := protected.Group("/slot-templates")
	templates.GET("", middleware.RequireCapability(middleware.CapTimetableRead), timeSlotHandler.ListTemplates)
	templates.POST("", middleware.RequireCapability(middleware.CapCatalogWrite), timeSlotHandler.CreateTemplate)
	templates.PUT("/:id", middleware.RequireCapability(middleware.CapCatalogWrite), timeSlotHandler.UpdateTemplate)
	templates.DELETE("/:id", middleware.RequireCapability(middleware.CapCatalogWrite), timeSlotHandler.DeleteTemplate)
	templates.GET("/:id/slots", middleware.RequireCapability(middleware.CapTimetableRead), timeSlotHandler.ListSlots)
	templates.POST("/:id/slots", middleware.RequireCapability(middleware.CapCatalogWrite), timeSlotHandler.CreateSlot)

	slots := protected.Group("/time-slots")
	slots.PUT("/:id", middleware.RequireCapability(middleware.CapCatalogWrite), timeSlotHandler.UpdateSlot)
	slots.DELETE("/:id", middleware.RequireCapability(middleware.CapCatalogWrite), timeSlotHandler.DeleteSlot)

	teachers := protected.Group("/teachers/:teacherId")
	teachers.GET("/availability", middleware.RequireCapability(middleware.CapTimetableRead), availabilityHandler.List)
	teachers.POST("/availability", middleware.RequireCapability(middleware.CapAvailabilityWrite), availabilityHandler.Create)
	teachers.DELETE("/availability/:id", middleware.RequireCapability(middleware.CapAvailabilityWrite), availabilityHandler.Delete)
	teachers.GET("/qualifications", middleware.RequireCapability(middleware.CapTimetableRead), qualificationHandler.List)
	teachers.POST("/qualifications", middleware.RequireCapability(middleware.CapEligibilityWrite), qualificationHandler.Grant)
	teachers.DELETE("/qualifications/:subjectId", middleware.RequireCapability(middleware.CapEligibilityWrite), qualificationHandler.Revoke)
	teachers.GET("/assignments", middleware.RequireCapability(middleware.CapTimetableRead), qualificationHandler.ListAssignments)
	teachers.POST("/assignments", middleware.RequireCapability(middleware.CapEligibilityWrite), qualificationHandler.Assign)
	teachers.DELETE("/assignments/:id", middleware.RequireCapability(middleware.CapEligibilityWrite), qualificationHandler.Unassign)

	protected.GET("/subjects/:subjectId/qualified-teachers",
		middleware.RequireCapability(middleware.CapTimetableRead), qualificationHandler.QualifiedTeachers)

	timetable := protected.Group("/timetable")
	timetable.POST("/entries", middleware.RequireCapability(middleware.CapTimetableWrite), timetableHandler.CreateDraftEntry)
	timetable.DELETE("/entries/:id", middleware.RequireCapability(middleware.CapTimetableWrite), timetableHandler.DeleteEntry)
	timetable.GET("/classes/:classId", middleware.RequireCapability(middleware.CapTimetableRead), timetableHandler.ClassTimetable)
	timetable.PUT("/classes/:classId/draft", middleware.RequireCapability(middleware.CapTimetableWrite), timetableHandler.ReplaceDraft)
	timetable.DELETE("/classes/:classId/draft", middleware.RequireCapability(middleware.CapTimetableWrite), timetableHandler.DiscardDraft)
	timetable.POST("/classes/:classId/publish", middleware.RequireCapability(middleware.CapTimetablePublish), timetableHandler.Publish)
	timetable.GET("/classes/:classId/export", middleware.RequireCapability(middleware.CapTimetableRead), timetableHandler.Export)
	timetable.GET("/teachers/:teacherId", middleware.RequireCapability(middleware.CapTimetableRead), timetableHandler.TeacherTimetable)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
