// Package queue carries auth events over RabbitMQ: a publisher used by the
// auth use cases and a consumer that appends each event to an audit log.
package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iliyamo/admin-auth/internal/model"
)

// FormatAuditLine renders ev as one log line. Empty attributes are left out.
func FormatAuditLine(ev model.AuthEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type)
	for _, kv := range [][2]string{
		{"user_id", ev.UserID},
		{"device_id", ev.DeviceID},
		{"ip", ev.IP},
		{"reason", ev.Reason},
		{"user_agent", ev.UserAgent},
	} {
		if kv[1] == "" {
			continue
		}
		fmt.Fprintf(&b, " | %s=%q", kv[0], kv[1])
	}
	b.WriteByte('\n')
	return b.String()
}

// AppendAuditLine appends ev to the file at path, creating the directory and
// the file as needed.
func AppendAuditLine(path string, ev model.AuthEvent) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatAuditLine(ev)); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}
