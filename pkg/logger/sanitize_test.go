package logger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chrisdurfee/authgate/pkg/logger"
)

func TestSanitizedEmail(t *testing.T) {
	assert.Equal(t, "r*****@*******.com", logger.SanitizedEmail("ripley@example.com"))
	assert.Equal(t, "a@*******.com", logger.SanitizedEmail("a@example.com"))
	assert.Equal(t, "[invalid-email]", logger.SanitizedEmail("not-an-email"))
	assert.Equal(t, "[invalid-email]", logger.SanitizedEmail("two@at@signs"))
}

func TestRedactedAttr(t *testing.T) {
	prod := logger.RedactedAttr("email", "ripley@example.com", "production")
	assert.Equal(t, "[REDACTED]", prod.Value.String())

	dev := logger.RedactedAttr("email", "ripley@example.com", "development")
	assert.Equal(t, "ripley@example.com", dev.Value.String())
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, logger.SanitizeQueryString("token=abc123"))
	assert.True(t, logger.SanitizeQueryString("next=/reset?CODE=999"))
	assert.True(t, logger.SanitizeQueryString("email=ripley%40example.com"))
	assert.False(t, logger.SanitizeQueryString("page=2&sort=desc"))
	assert.False(t, logger.SanitizeQueryString(""))
}
