package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/unireg-ph/prereg-api/internal/middleware"
	"github.com/unireg-ph/prereg-api/internal/models"
	"github.com/unireg-ph/prereg-api/internal/service"
)

// Handlers gathers every route handler for registration.
type Handlers struct {
	Auth       *AuthHandler
	Users      *UserHandler
	Programs   *ProgramHandler
	Courses    *CourseHandler
	Schedules  *ScheduleHandler
	Semesters  *SemesterHandler
	Enrollment *EnrollmentHandler
	Queue      *QueueHandler
	Imports    *ImportHandler
	Exports    *ExportHandler
	Metrics    *MetricsHandler
}

// Register wires all routes under the API prefix. Auth middleware guards
// everything except login, health and the public queue display.
func Register(r *gin.Engine, prefix string, auth *service.AuthService, h Handlers) {
	api := r.Group(prefix)

	api.POST("/auth/login", h.Auth.Login)
	api.GET("/health", h.Metrics.Health)
	api.GET("/metrics", h.Metrics.Prometheus)

	// The waiting-room display polls these without credentials.
	api.GET("/queue/current/:destination", h.Queue.Current)
	api.GET("/queue/destinations", h.Queue.Destinations)

	protected := api.Group("")
	protected.Use(middleware.JWT(auth))

	protected.GET("/auth/me", h.Auth.Profile)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleCashier, models.RoleInstructor)
	admin := middleware.RequireRoles(models.RoleAdmin)
	registrar := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar)

	users := protected.Group("/users")
	{
		users.GET("", staff, h.Users.List)
		users.POST("", registrar, h.Users.Create)
		users.GET("/:id", middleware.RBAC("ADMIN", "REGISTRAR", "CASHIER", "INSTRUCTOR", "SELF"), h.Users.Get)
		users.GET("/:id/student", middleware.RBAC("ADMIN", "REGISTRAR", "SELF"), h.Users.StudentDetail)
		users.PUT("/:id", middleware.RBAC("ADMIN", "REGISTRAR", "SELF"), h.Users.Update)
		users.POST("/:id/approve", registrar, h.Users.Approve)
		users.POST("/:id/reject", registrar, h.Users.Reject)
		users.GET("/:id/counters", staff, h.Users.StaffCounters)
		users.DELETE("/:id", admin, h.Users.Archive)
		users.POST("/:id/restore", admin, h.Users.Restore)
	}

	programs := protected.Group("/programs")
	{
		programs.GET("", h.Programs.List)
		programs.GET("/:id", h.Programs.Get)
		programs.POST("", registrar, h.Programs.Create)
		programs.PUT("/:id", registrar, h.Programs.Update)
		programs.DELETE("/:id", admin, h.Programs.Archive)
		programs.POST("/:id/restore", admin, h.Programs.Restore)
	}

	courses := protected.Group("/courses")
	{
		courses.GET("", h.Courses.List)
		courses.GET("/:id", h.Courses.Get)
		courses.POST("", registrar, h.Courses.Create)
		courses.PUT("/:id", registrar, h.Courses.Update)
		courses.DELETE("/:id", admin, h.Courses.Archive)
		courses.POST("/:id/restore", admin, h.Courses.Restore)
	}

	schedules := protected.Group("/schedules")
	{
		schedules.GET("", h.Schedules.List)
		schedules.GET("/:id", h.Schedules.Get)
		schedules.POST("", registrar, h.Schedules.Create)
		schedules.DELETE("/:id", admin, h.Schedules.Archive)
		schedules.POST("/:id/restore", admin, h.Schedules.Restore)
	}

	semesters := protected.Group("/semesters")
	{
		semesters.GET("/active", h.Semesters.Active)
		semesters.PUT("/active", admin, h.Semesters.SetActive)
		semesters.POST("/advance", admin, h.Semesters.Advance)
	}

	enrollment := protected.Group("/enrollment")
	{
		enrollment.POST("/evaluate", h.Enrollment.Evaluate)
		enrollment.POST("/students/:id/acknowledge-inc", middleware.RBAC("ADMIN", "REGISTRAR", "SELF"), h.Enrollment.AcknowledgeIncomplete)
		enrollment.POST("/students/:id/regular", registrar, h.Enrollment.EnrollRegular)
		enrollment.DELETE("/students/:id/plan/:courseId", middleware.RBAC("ADMIN", "REGISTRAR", "SELF"), h.Enrollment.RemoveFromPlan)
		enrollment.POST("/students/:id/plan/:courseId/restore", middleware.RBAC("ADMIN", "REGISTRAR", "SELF"), h.Enrollment.RestoreToPlan)
	}

	queue := protected.Group("/queue")
	{
		queue.POST("/tickets", h.Queue.CreateTicket)
		queue.POST("/transactions", staff, h.Queue.CreateTransaction)
		queue.GET("/tickets", staff, h.Queue.List)
		queue.GET("/tickets/:id", h.Queue.Get)
		queue.POST("/tickets/:id/advance", staff, h.Queue.Advance)
		queue.POST("/tickets/:id/done", staff, h.Queue.Done)
		queue.POST("/tickets/:id/cancel", staff, h.Queue.Cancel)
		queue.POST("/reset", admin, h.Queue.Reset)
	}

	imports := protected.Group("/imports", registrar)
	{
		imports.POST("/schedules", h.Imports.Schedules)
		imports.POST("/roster", h.Imports.Roster)
	}

	exports := protected.Group("/exports")
	{
		exports.GET("/tickets/:id/slip", h.Exports.TicketSlip)
		exports.GET("/tickets", staff, h.Exports.TicketsCSV)
		exports.GET("/tickets/masterlist", staff, h.Exports.TicketsPDF)
		exports.GET("/students", registrar, h.Exports.StudentsCSV)
	}
}
