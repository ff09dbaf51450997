package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	mirrorapp "github.com/osvaldoandrade/pkgmirror/internal/app/mirror"
	"github.com/osvaldoandrade/pkgmirror/internal/app/paths"
	publishapp "github.com/osvaldoandrade/pkgmirror/internal/app/publish"
	"github.com/osvaldoandrade/pkgmirror/internal/app/reconcile"
	snapshotapp "github.com/osvaldoandrade/pkgmirror/internal/app/snapshot"
	"github.com/osvaldoandrade/pkgmirror/internal/config"
	"github.com/osvaldoandrade/pkgmirror/internal/domain"
	"github.com/osvaldoandrade/pkgmirror/internal/infra/gitrepo"
	"github.com/osvaldoandrade/pkgmirror/internal/platform"
)

var ErrJournalDisabled = errors.New("run journal is disabled")

type ErrorKind string

const (
	KindInternal   ErrorKind = "internal"
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
)

const (
	ExitInternal = 1
	ExitInvalid  = 2
	ExitNotFound = 3
	ExitConflict = 4
)

type ExitError struct {
	Code    int
	Kind    ErrorKind
	Message string
	Err     error
}

func (e ExitError) Error() string {
	return errorMessage(e)
}

func NormalizeError(err error) ExitError {
	if err == nil {
		return ExitError{Code: 0}
	}
	var exitErr ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Code == 0 {
			exitErr.Code = ExitInternal
		}
		return exitErr
	}

	switch {
	case errors.Is(err, snapshotapp.ErrSnapshotNotFound),
		errors.Is(err, domain.ErrRunNotFound),
		errors.Is(err, config.ErrConfigNotFound):
		return ExitError{Code: ExitNotFound, Kind: KindNotFound, Err: err}
	case errors.Is(err, reconcile.ErrUnresolvedDrift),
		errors.Is(err, mirrorapp.ErrChannelsNotConverged),
		errors.Is(err, publishapp.ErrPublishTargetMissing),
		errors.Is(err, gitrepo.ErrPushRejected):
		return ExitError{Code: ExitConflict, Kind: KindConflict, Err: err}
	case errors.Is(err, paths.ErrPathRequired),
		errors.Is(err, snapshotapp.ErrInvalidDate),
		errors.Is(err, config.ErrNoChannels),
		errors.Is(err, config.ErrDuplicateChannel),
		errors.Is(err, config.ErrUnknownChannel),
		errors.Is(err, config.ErrInvalidMaxPasses),
		errors.Is(err, config.ErrInvalidRetryDelay),
		errors.Is(err, config.ErrUnknownTargetChannel),
		errors.Is(err, mirrorapp.ErrNoChannels),
		errors.Is(err, ErrJournalDisabled),
		errors.Is(err, mirrorapp.ErrPublishNotConfigured),
		errors.Is(err, publishapp.ErrNoTargets),
		errors.Is(err, domain.ErrChannelNameRequired),
		errors.Is(err, domain.ErrInvalidChannelName),
		errors.Is(err, domain.ErrInvalidArchitecture),
		errors.Is(err, platform.ErrInvalidLogLevel),
		errors.Is(err, platform.ErrInvalidLogFormat):
		return ExitError{Code: ExitInvalid, Kind: KindValidation, Err: err}
	default:
		return ExitError{Code: ExitInternal, Kind: KindInternal, Err: err}
	}
}

func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return NormalizeError(err).Code
}

func writeCLIError(w io.Writer, exitErr ExitError, asJSON bool) error {
	if exitErr.Code == 0 {
		return nil
	}
	message := errorMessage(exitErr)
	if asJSON {
		payload := struct {
			Code    int    `json:"code"`
			Kind    string `json:"kind"`
			Message string `json:"message"`
		}{
			Code:    exitErr.Code,
			Kind:    string(exitErr.Kind),
			Message: message,
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(payload)
	}

	ui := newRenderer(w, false)
	prefix := "Error"
	if exitErr.Kind != "" {
		prefix = fmt.Sprintf("Error (%s)", exitErr.Kind)
	}
	prefix = ui.err(prefix)
	_, err := fmt.Fprintf(w, "%s: %s\n", prefix, message)
	return err
}

func errorMessage(exitErr ExitError) string {
	if exitErr.Message != "" {
		return exitErr.Message
	}
	if exitErr.Err != nil {
		return exitErr.Err.Error()
	}
	return "unknown error"
}
