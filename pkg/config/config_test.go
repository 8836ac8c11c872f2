package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func newTestViper(values map[string]interface{}) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for key, value := range values {
		v.Set(key, value)
	}
	return v
}

func TestDefaults(t *testing.T) {
	cfg := fromViper(newTestViper(nil))

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8, cfg.Enrollment.MaxCoursesPerSession)
	assert.Equal(t, MailDriverLog, cfg.Mail.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, 5*time.Second, cfg.Notifications.RetryDelay)
	assert.Empty(t, cfg.NATS.URL)
}

func TestOverrides(t *testing.T) {
	cfg := fromViper(newTestViper(map[string]interface{}{
		"ENROLLMENT_MAX_PER_SESSION": 5,
		"MAIL_DRIVER":                "SendGrid",
		"ALLOWED_ORIGINS":            "https://portal.fasch.edu, https://admin.fasch.edu ,",
		"JWT_EXPIRATION":             "not-a-duration",
	}))

	assert.Equal(t, 5, cfg.Enrollment.MaxCoursesPerSession)
	assert.Equal(t, MailDriverSendGrid, cfg.Mail.Driver)
	assert.Equal(t, []string{"https://portal.fasch.edu", "https://admin.fasch.edu"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
}

func TestInvalidValuesFallBack(t *testing.T) {
	cfg := fromViper(newTestViper(map[string]interface{}{
		"ENROLLMENT_MAX_PER_SESSION": 0,
		"MAIL_DRIVER":                "pigeon",
	}))

	assert.Equal(t, 8, cfg.Enrollment.MaxCoursesPerSession)
	assert.Equal(t, MailDriverLog, cfg.Mail.Driver)
}
