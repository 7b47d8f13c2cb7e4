package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeParams(t *testing.T) {
	params := RuntimeParams(&Config{
		StatementTimeout: 30 * time.Second,
		ReadOnly:         true,
		ApplicationName:  "insights-engine",
	})

	assert.Equal(t, map[string]string{
		"statement_timeout":             "30000",
		"default_transaction_read_only": "on",
		"application_name":              "insights-engine",
	}, params)

	assert.Empty(t, RuntimeParams(&Config{}))
}
