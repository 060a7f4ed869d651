package utils

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// GenerateTicketNumber returns a human-readable unique ticket number such as
// TKT-3F2A9C0D1B4E5A6F.
func GenerateTicketNumber() string {
	id := uuid.New()
	return "TKT-" + strings.ToUpper(hex.EncodeToString(id[:8]))
}

// GenerateInstanceID identifies this process, e.g. as the owner of a
// distributed lock.
func GenerateInstanceID(service string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s-%s", service, host, uuid.New().String()[:8])
}
