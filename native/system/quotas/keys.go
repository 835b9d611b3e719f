package quotas

import (
	"fmt"
	"strings"
)

const quotasPrefix = "quotas"

func normaliseModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}

func counterKey(module string, addr []byte) []byte {
	return []byte(fmt.Sprintf("%s/%s/%x", quotasPrefix, normaliseModule(module), addr))
}
