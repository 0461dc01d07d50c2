package common

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/svetsrebrev/orderq/internal/utils"
)

// SetupLogging configures the global logger from LOG_LEVEL and LOG_FORMAT
func SetupLogging() {
	level, err := zerolog.ParseLevel(utils.GetEnvOrDefaultStr("LOG_LEVEL", "info"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if utils.GetEnvOrDefaultStr("LOG_FORMAT", "json") == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// RunUntilCancelled runs action in the background. With a positive restartInterval a failed
// action is started again after the pause, otherwise it runs once. The returned channel
// delivers the final error (nil or the cancellation error on a clean exit) and is then closed.
func RunUntilCancelled(ctx context.Context, serviceName string, restartInterval time.Duration, action func(ctx context.Context) error) <-chan error {
	done := make(chan error, 1)

	go func() {
		defer close(done)

		for {
			log.Info().Msgf("Starting %s", serviceName)

			err := action(ctx)
			if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
				done <- err
				return
			}

			if restartInterval <= 0 {
				log.Error().Err(err).Msgf("%s failed", serviceName)
				done <- err
				return
			}

			log.Error().Err(err).Msgf("%s failed, restarting in %v", serviceName, restartInterval)
			if err := utils.SleepContext(ctx, restartInterval); err != nil {
				done <- err
				return
			}
		}
	}()

	return done
}

// TrackInterupts cancels on the first interrupt and closes the returned channel on the second one
func TrackInterupts(cancel context.CancelFunc, done <-chan struct{}) <-chan struct{} {
	kill := make(chan struct{})

	go func() {
		interupts := make(chan os.Signal, 2)
		signal.Notify(interupts, os.Interrupt)
		defer signal.Stop(interupts)

		select {
		case <-done:
			return
		case <-interupts:
			log.Info().Msg("Starting graceful exit ....")
			cancel()
		}

		select {
		case <-done:
			return
		case <-interupts:
			log.Warn().Msgf("Second interrupt signal, quitting without waiting for graceful exit")
			close(kill)
		}
	}()

	return kill
}

// WaitForExit blocks until the process reports its result or a second interrupt forces the exit
func WaitForExit(cancel context.CancelFunc, result <-chan error) error {
	finished := make(chan struct{})
	defer close(finished)
	kill := TrackInterupts(cancel, finished)

	select {
	case err := <-result:
		return err
	case <-kill:
		return errors.New("killed by second interrupt")
	}
}

// IsFailure reports whether a process result should end with a non-zero exit code.
// A first interrupt ends the run with context.Canceled, which is a clean exit.
func IsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

func ConcatErrMessages(err error) string {
	if err == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(err.Error())
	for nextErr := errors.Unwrap(err); nextErr != nil; nextErr = errors.Unwrap(nextErr) {
		sb.WriteString(" :: ")
		sb.WriteString(nextErr.Error())
	}
	return sb.String()
}
