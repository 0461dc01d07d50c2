package utils

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

func LogIfNotCancelled(err error, msg string) {
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg(msg)
	}
}

// SleepContext pauses for d or until ctx is done, whichever comes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func GetEnvOrDefaultStr(key string, defaultVal string) string {
	return getEnvOrDefault(key, defaultVal, noOp)
}

func GetEnvOrDefaultInt(key string, defaultVal int) int {
	return getEnvOrDefault(key, defaultVal, strconv.Atoi)
}

func GetEnvOrDefaultInt64(key string, defaultVal int64) int64 {
	return getEnvOrDefault(key, defaultVal, func(v string) (int64, error) { return strconv.ParseInt(v, 10, 64) })
}

func GetEnvOrDefaultBool(key string, defaultVal bool) bool {
	return getEnvOrDefault(key, defaultVal, strconv.ParseBool)
}

func GetEnvOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	return getEnvOrDefault(key, defaultVal, time.ParseDuration)
}

func GetEnvOrDefaultArray(key, defaultVal, separator string) []string {
	val := GetEnvOrDefaultStr(key, defaultVal)
	items := strings.Split(val, separator)
	result := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

func noOp(v string) (string, error) { return v, nil }

func getEnvOrDefault[T any](key string, defaultVal T, convert func(string) (T, error)) T {
	val, ok := os.LookupEnv(key)
	if !ok {
		log.Debug().Msgf("%s not set, defaulting to '%v'", key, defaultVal)
		return defaultVal
	}

	converted, err := convert(val)
	if err != nil {
		log.Warn().Msgf("%s is not an %T, defaulting to '%v'", key, *new(T), defaultVal)
		return defaultVal
	}
	return converted
}
