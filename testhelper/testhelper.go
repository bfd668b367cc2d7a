// Package testhelper provides small helpers shared by the test suites.
package testhelper

import (
	"strings"

	"github.com/google/uuid"
)

// RandResource returns a unique resource name with the given prefix, so
// integration tests running against a shared database never contend on each
// other's locks.
func RandResource(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
