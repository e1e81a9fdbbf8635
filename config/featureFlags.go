package config

import (
	"os"
	"strings"
)

// EnvBoolDefault reads a boolean flag from the environment, falling back to
// def when the variable is unset or carries an unrecognized value.
func EnvBoolDefault(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}

// SkipMigrations disables AutoMigrate on startup. Useful when the schema is
// managed out of band or several replicas start at once.
//
// Set via env:
// - SKIP_MIGRATIONS=true
func SkipMigrations() bool {
	return EnvBoolDefault("SKIP_MIGRATIONS", false)
}

// PubSubPushEnabled gates the Pub/Sub push endpoint so a deployment without
// a subscription can keep the route dark.
//
// Set via env:
// - ENABLE_PROPSYNC_PUBSUB_PUSH_ENDPOINT=false
func PubSubPushEnabled() bool {
	return EnvBoolDefault("ENABLE_PROPSYNC_PUBSUB_PUSH_ENDPOINT", true)
}
