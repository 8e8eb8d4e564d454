//go:build integration

package integration

import (
	"fmt"
	"strings"
	"time"
)

// TestUser generates unique credentials so tests never collide on the
// users.email unique constraint
func TestUser(suffix string) (email, password string) {
	safe := strings.ToLower(strings.ReplaceAll(suffix, "/", "-"))
	email = fmt.Sprintf("test-%d-%s@example.com", time.Now().UnixNano(), safe)
	password = "Test-Password-123!"
	return
}
