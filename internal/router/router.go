package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/fasch-registrar-api/internal/handler"
	"github.com/noah-isme/fasch-registrar-api/internal/middleware"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	Auth          *handler.AuthHandler
	Users         *handler.UserHandler
	Catalog       *handler.CatalogHandler
	Enrollments   *handler.EnrollmentHandler
	Grades        *handler.GradeHandler
	Transcripts   *handler.TranscriptHandler
	Notifications *handler.NotificationHandler
	Candidatures  *handler.CandidatureHandler

	JWT   gin.HandlerFunc
	Audit func(resource string) gin.HandlerFunc
}

// Register wires the registrar API under prefix.
func Register(r gin.IRouter, prefix string, deps Dependencies, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	audit := deps.Audit
	if audit == nil {
		audit = func(string) gin.HandlerFunc { return func(c *gin.Context) { c.Next() } }
	}

	api := r.Group(prefix)
	staff := middleware.RequireStaff()
	teaching := middleware.RequireRoles(models.RoleProfessor, models.RoleAdmin, models.RoleSuperuser)
	student := middleware.RequireRoles(models.RoleStudent)

	api.POST("/auth/login", deps.Auth.Login)

	// Applicants have no account.
	api.POST("/candidatures", deps.Candidatures.Create)
	api.PUT("/candidatures/:id", deps.Candidatures.Update)
	api.POST("/candidatures/:id/submit", deps.Candidatures.Submit)

	secured := api.Group("", deps.JWT)
	secured.GET("/auth/me", deps.Auth.Me)
	secured.POST("/auth/change-password", deps.Auth.ChangePassword)

	users := secured.Group("/users")
	users.GET("", staff, deps.Users.List)
	users.POST("", staff, audit("users"), deps.Users.Create)
	users.POST("/status", staff, audit("users"), deps.Users.SetActive)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperuser), middleware.Self), deps.Users.Get)
	users.PATCH("/:id", staff, audit("users"), deps.Users.Update)
	users.PATCH("/:id/student-profile", staff, audit("student_profiles"), deps.Users.UpdateStudentProfile)
	users.PATCH("/:id/professor-profile", staff, audit("professor_profiles"), deps.Users.UpdateProfessorProfile)

	secured.GET("/departments", deps.Catalog.ListDepartments)
	secured.POST("/departments", staff, audit("departments"), deps.Catalog.CreateDepartment)

	courses := secured.Group("/courses")
	courses.GET("", deps.Catalog.ListCourses)
	courses.POST("", staff, audit("courses"), deps.Catalog.CreateCourse)
	courses.GET("/:id", deps.Catalog.GetCourse)
	courses.PATCH("/:id", staff, audit("courses"), deps.Catalog.UpdateCourse)
	courses.GET("/:id/prerequisites", deps.Catalog.Prerequisites)
	courses.POST("/:id/prerequisites", staff, audit("prerequisites"), deps.Catalog.AddPrerequisite)
	courses.DELETE("/:id/prerequisites/:prerequisiteId", staff, audit("prerequisites"), deps.Catalog.RemovePrerequisite)

	sections := secured.Group("/sections")
	sections.GET("", deps.Catalog.ListSections)
	sections.GET("/available", student, deps.Catalog.AvailableSections)
	sections.POST("", staff, audit("sections"), deps.Catalog.CreateSection)
	sections.GET("/:id", deps.Catalog.GetSection)
	sections.PATCH("/:id", staff, audit("sections"), deps.Catalog.UpdateSection)
	sections.GET("/:id/grades", teaching, deps.Grades.ListSection)
	sections.POST("/:id/grades", teaching, audit("grades"), deps.Grades.RecordBulk)
	sections.GET("/:id/statistics", teaching, deps.Grades.Statistics)

	enrollments := secured.Group("/enrollments")
	enrollments.GET("", deps.Enrollments.List)
	enrollments.POST("", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin, models.RoleSuperuser), deps.Enrollments.Create)
	enrollments.GET("/counters", deps.Enrollments.Counters)
	enrollments.PATCH("/:id/status", staff, audit("enrollments"), deps.Enrollments.ChangeStatus)
	enrollments.POST("/:id/drop", deps.Enrollments.Drop)
	enrollments.GET("/:id/history", deps.Enrollments.History)
	enrollments.GET("/:id/grade", deps.Grades.Get)
	enrollments.PUT("/:id/grade", teaching, audit("grades"), deps.Grades.Record)
	enrollments.GET("/:id/grade/history", deps.Grades.History)

	secured.GET("/grades/me", student, deps.Grades.Mine)
	secured.POST("/grades/recalculate", staff, audit("grades"), deps.Grades.Recalculate)

	secured.POST("/transcripts", staff, deps.Transcripts.Generate)
	secured.GET("/students/:studentId/transcripts", deps.Transcripts.List)
	secured.GET("/students/:studentId/transcripts/:semester/:year", deps.Transcripts.Get)
	secured.GET("/students/:studentId/transcripts/:semester/:year/export", deps.Transcripts.Export)

	notifications := secured.Group("/notifications")
	notifications.GET("", deps.Notifications.List)
	notifications.GET("/unread-count", deps.Notifications.UnreadCount)
	notifications.POST("/read-all", deps.Notifications.MarkAllRead)
	notifications.POST("/:id/read", deps.Notifications.MarkRead)

	review := secured.Group("/candidatures", staff)
	review.GET("", deps.Candidatures.List)
	review.GET("/:id", deps.Candidatures.Get)
	review.POST("/:id/review", audit("candidatures"), deps.Candidatures.Review)

	logger.Debug("routes registered", zap.String("prefix", prefix))
}
