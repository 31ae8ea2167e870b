package cmd

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/crawlpace/crawlpace/internal/config"
	"github.com/crawlpace/crawlpace/internal/observability"
)

// ExitWithCode logs err with foundry exit metadata and exits.
// A nil logger falls back to stderr.
func ExitWithCode(logger observability.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok || logger == nil {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("correlation_id", envelope.CorrelationID),
		)
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
		if original, ok := envelope.Original.(error); ok {
			err = original
		}
	}

	fields = append(fields, zap.Error(err))
	logger.Error(msg, fields...)
	os.Exit(info.Code)
}

// ExitWithCodeStderr writes err to stderr and exits. It is used before the
// logger exists.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		os.Exit(int(exitCode))
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	os.Exit(info.Code)
}

// ExitCodeFor picks the semantic exit code for a failed command.
func ExitCodeFor(err error) foundry.ExitCode {
	switch {
	case err == nil:
		return foundry.ExitCode(0)
	case isConfigError(err):
		return foundry.ExitConfigInvalid
	case stderrors.Is(err, os.ErrNotExist):
		return foundry.ExitFileNotFound
	default:
		return foundry.ExitFailure
	}
}

func isConfigError(err error) bool {
	for _, target := range []error{
		config.ErrInvalidRate,
		config.ErrInvalidBurst,
		config.ErrInvalidDelayBounds,
		config.ErrInvalidRetries,
		config.ErrInvalidTargetConcurrency,
		config.ErrInvalidDomainKey,
		config.ErrInvalidConcurrency,
		config.ErrInvalidStatusCode,
	} {
		if stderrors.Is(err, target) {
			return true
		}
	}
	return false
}
