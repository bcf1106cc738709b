// Package config provides configuration helpers for snapsink commands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Default daemon configuration.
const (
	DefaultPort    = 1704
	DefaultWebPort = "8080"
	DefaultCodec   = "wave"
)

// Port returns the snapcast listening port from SNAPSINK_PORT.
// Falls back to the default if not set.
func Port() int {
	if v := os.Getenv("SNAPSINK_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			fmt.Fprintf(os.Stderr, "Error: invalid SNAPSINK_PORT %q\n", v)
			os.Exit(1)
		}
		return port
	}
	return DefaultPort
}

// BindAddresses returns the listen addresses from SNAPSINK_BIND
// (comma-separated). Empty means all interfaces.
func BindAddresses() []string {
	v := os.Getenv("SNAPSINK_BIND")
	if v == "" {
		return nil
	}
	var addrs []string
	for _, a := range strings.Split(v, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

// Zeroconf reports whether service advertisement is enabled.
// Set SNAPSINK_ZEROCONF=0 to disable.
func Zeroconf() bool {
	switch os.Getenv("SNAPSINK_ZEROCONF") {
	case "0", "false", "no":
		return false
	}
	return true
}

// Codec returns the encoder name from SNAPSINK_CODEC or the default.
func Codec() string {
	if v := os.Getenv("SNAPSINK_CODEC"); v != "" {
		return v
	}
	return DefaultCodec
}

// WebPort returns the dashboard port from SNAPSINK_WEB_PORT or the
// default. SNAPSINK_WEB_PORT=off disables the dashboard.
func WebPort() string {
	if v := os.Getenv("SNAPSINK_WEB_PORT"); v != "" {
		return v
	}
	return DefaultWebPort
}

// LogLevel returns the log level from SNAPSINK_LOG_LEVEL or "info".
func LogLevel() string {
	if v := os.Getenv("SNAPSINK_LOG_LEVEL"); v != "" {
		return v
	}
	return "info"
}
