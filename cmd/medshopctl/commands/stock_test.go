package commands

import (
	"bytes"
	"encoding/json"
	"testing"

	"medshop/internal/reports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintAlerts(t *testing.T) {
	alerts := &reports.StockAlerts{TotalProducts: 12, Expired: 1, LowStock: 3, ExpiringSoon: 2, ExpiringDays: 30}

	t.Run("table", func(t *testing.T) {
		jsonOutput = false
		var buf bytes.Buffer
		require.NoError(t, printAlerts(&buf, alerts))
		out := buf.String()
		assert.Regexp(t, `TOTAL PRODUCTS\s+12\n`, out)
		assert.Regexp(t, `EXPIRING IN 30 DAYS\s+2\n`, out)
	})

	t.Run("json", func(t *testing.T) {
		jsonOutput = true
		defer func() { jsonOutput = false }()
		var buf bytes.Buffer
		require.NoError(t, printAlerts(&buf, alerts))

		var got reports.StockAlerts
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, *alerts, got)
	})
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"migrate", "purge-logs", "check-stock"} {
		assert.True(t, names[want], want)
	}
}
