// Package bootstrap assembles repositories and services from configuration.
// Both the HTTP API and the admin CLI build their object graph here.
package bootstrap

import (
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/fasch-registrar-api/internal/repository"
	"github.com/noah-isme/fasch-registrar-api/internal/service"
	"github.com/noah-isme/fasch-registrar-api/pkg/config"
	"github.com/noah-isme/fasch-registrar-api/pkg/events"
	"github.com/noah-isme/fasch-registrar-api/pkg/export"
	"github.com/noah-isme/fasch-registrar-api/pkg/jobs"
	"github.com/noah-isme/fasch-registrar-api/pkg/mailer"
	"github.com/noah-isme/fasch-registrar-api/pkg/validation"
)

// Institution is printed on exported transcripts.
const Institution = "Faculté des Sciences Humaines"

// Infrastructure carries the connections opened by the caller.
// Redis may be nil when caching is disabled.
type Infrastructure struct {
	DB        *sqlx.DB
	Redis     *redis.Client
	Publisher events.Publisher
	Queue     *jobs.Queue
	Mailer    mailer.Sender
}

// Repositories groups the sqlx repositories.
type Repositories struct {
	Users         *repository.UserRepository
	Profiles      *repository.ProfileRepository
	Catalog       *repository.CatalogRepository
	Enrollments   *repository.EnrollmentRepository
	Grades        *repository.GradeRepository
	Transcripts   *repository.TranscriptRepository
	Notifications *repository.NotificationRepository
	Candidatures  *repository.CandidatureRepository
}

// Services groups the domain services.
type Services struct {
	Repos Repositories

	Metrics       *service.MetricsService
	Cache         *service.CacheService
	Notifications *service.NotificationService
	Auth          *service.AuthService
	Profiles      *service.ProfileService
	Users         *service.UserService
	Catalog       *service.CatalogService
	Enrollments   *service.EnrollmentService
	Grades        *service.GradeService
	Exports       *service.ExportService
	Transcripts   *service.TranscriptService
	Candidatures  *service.CandidatureService

	logger *zap.Logger
}

// New wires every service. The queue, when present, gets the email handler
// registered; the caller still owns Start and Stop.
func New(cfg *config.Config, infra Infrastructure, logger *zap.Logger) *Services {
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := infra.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	sender := infra.Mailer
	if sender == nil {
		sender = mailer.New(cfg.Mail, logger)
	}

	validate := validation.New()
	repos := Repositories{
		Users:         repository.NewUserRepository(infra.DB),
		Profiles:      repository.NewProfileRepository(infra.DB),
		Catalog:       repository.NewCatalogRepository(infra.DB),
		Enrollments:   repository.NewEnrollmentRepository(infra.DB),
		Grades:        repository.NewGradeRepository(infra.DB),
		Transcripts:   repository.NewTranscriptRepository(infra.DB),
		Notifications: repository.NewNotificationRepository(infra.DB),
		Candidatures:  repository.NewCandidatureRepository(infra.DB),
	}

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if infra.Redis != nil {
		cacheRepo = repository.NewCacheRepository(infra.Redis, logger)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Redis.CacheTTL, logger, cfg.Redis.Enabled && infra.Redis != nil)

	var queue *jobs.Queue
	if infra.Queue != nil {
		queue = infra.Queue
	} else {
		queue = jobs.NewQueue("notifications", jobs.QueueConfig{Workers: 1, Logger: logger})
	}
	notifications := service.NewNotificationService(repos.Notifications, queue, sender, metrics, logger)
	queue.Register(service.EmailJobType, notifications.HandleEmailJob)

	profiles := service.NewProfileService(repos.Profiles, validate, logger)
	exports := service.NewExportService(export.NewCSVExporter(), export.NewPDFExporter(Institution))

	s := &Services{
		Repos:         repos,
		Metrics:       metrics,
		Cache:         cacheSvc,
		Notifications: notifications,
		Auth: service.NewAuthService(repos.Users, validate, logger, service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			AccessTokenExpiry: cfg.JWT.Expiration,
			Issuer:            cfg.JWT.Issuer,
		}),
		Profiles: profiles,
		Users:    service.NewUserService(repos.Users, profiles, publisher, validate, logger),
		Catalog:  service.NewCatalogService(repos.Catalog, repos.Profiles, validate, logger),
		Enrollments: service.NewEnrollmentService(repos.Enrollments, repos.Profiles, notifications, publisher, cacheSvc, metrics, validate, logger,
			service.EnrollmentConfig{MaxCoursesPerSession: cfg.Enrollment.MaxCoursesPerSession}),
		Grades: service.NewGradeService(service.GradeDependencies{
			Repo:        repos.Grades,
			Enrollments: repos.Enrollments,
			Sections:    repos.Catalog,
			Students:    repos.Profiles,
			Professors:  repos.Profiles,
			Notifier:    notifications,
			Publisher:   publisher,
			Cache:       cacheSvc,
			Metrics:     metrics,
			Validator:   validate,
			Logger:      logger,
		}),
		Exports:      exports,
		Transcripts:  service.NewTranscriptService(repos.Transcripts, repos.Grades, repos.Profiles, repos.Users, exports, cacheSvc, metrics, validate, logger),
		Candidatures: service.NewCandidatureService(repos.Candidatures, notifications, publisher, validate, logger),
		logger:       logger,
	}
	return s
}

// Importer builds a CSV import service. Accounts created without a password
// column receive tempPassword.
func (s *Services) Importer(tempPassword string) *service.ImportService {
	return service.NewImportService(service.ImportDependencies{
		Users:         s.Users,
		Profiles:      s.Profiles,
		Catalog:       s.Catalog,
		Enrollments:   s.Enrollments,
		UserLookup:    s.Repos.Users,
		CatalogLookup: s.Repos.Catalog,
		ProfileLookup: s.Repos.Profiles,
		TempPassword:  tempPassword,
		Logger:        s.logger,
	})
}
