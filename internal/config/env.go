package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func lookupTrimmed(key string) (string, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	return value, value != ""
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw, ok := lookupTrimmed(key)
	if !ok {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil || val == nil {
		return defaultValue, err
	}
	return *val, nil
}

// parseDurationEnv 接受 Go duration 字符串，纯数字按毫秒处理。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return defaultValue, nil
	}

	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}

	val, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, value)
	}
	return val, nil
}
