package utils_test

import (
	"regexp"
	"strings"
	"testing"

	"ms-inventory/internal/utils"

	"github.com/stretchr/testify/assert"
)

func TestGenerateTicketNumber(t *testing.T) {
	pattern := regexp.MustCompile(`^TKT-[0-9A-F]{16}$`)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		n := utils.GenerateTicketNumber()
		assert.Regexp(t, pattern, n)
		assert.False(t, seen[n], "duplicate ticket number %s", n)
		seen[n] = true
	}
}

func TestGenerateInstanceID(t *testing.T) {
	a := utils.GenerateInstanceID("sweeper")
	b := utils.GenerateInstanceID("sweeper")
	assert.True(t, strings.HasPrefix(a, "sweeper-"))
	assert.NotEqual(t, a, b)
}
