package instance

import "os"

// GetID names this process replica in logs and lock values. It falls back to
// the hostname, then to a fixed default.
func GetID() string {
	if id := os.Getenv("SHOPCORE_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
