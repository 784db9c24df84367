// pkg/preflight/preflight.go - checks that run before anything on the machine
// is touched: administrative rights and invocation parameters.

package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/windowsadmins/agentrepair/pkg/config"
	"github.com/windowsadmins/agentrepair/pkg/logging"
)

// ErrNotAdmin is returned when the process lacks administrative rights.
var ErrNotAdmin = errors.New("administrative rights are required; re-run from an elevated prompt")

// ValidationError names the parameter that failed validation.
type ValidationError struct {
	Param string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Param, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// identityFields are only needed when the agent is (re)installed.
var identityFields = []string{"Server", "CustomerID", "RegistrationToken"}

// Validator checks a configuration before a run.
type Validator struct {
	// LookupHost resolves the server name. Defaults to net.DefaultResolver.
	LookupHost func(ctx context.Context, host string) ([]string, error)

	validate *validator.Validate
}

// NewValidator returns a Validator using the system resolver.
func NewValidator() *Validator {
	return &Validator{
		LookupHost: net.DefaultResolver.LookupHost,
		validate:   validator.New(),
	}
}

// RequireAdmin returns ErrNotAdmin unless the process is elevated.
func RequireAdmin() error {
	ok, err := IsAdmin()
	if err != nil {
		return fmt.Errorf("failed to check administrative rights: %w", err)
	}
	if !ok {
		return ErrNotAdmin
	}
	return nil
}

// Validate checks cfg. Identity checks (server, customer ID, token) are
// skipped when requireIdentity is false. Every failure is collected; the
// result unwraps to one *ValidationError per bad parameter.
func (v *Validator) Validate(ctx context.Context, cfg *config.Configuration, requireIdentity bool) error {
	if v.validate == nil {
		v.validate = validator.New()
	}
	var result *multierror.Error

	var err error
	if requireIdentity {
		err = v.validate.StructCtx(ctx, cfg)
	} else {
		err = v.validate.StructExceptCtx(ctx, cfg, identityFields...)
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			result = multierror.Append(result, &ValidationError{
				Param: fe.Field(),
				Err:   fmt.Errorf("failed the %q rule", fe.Tag()),
			})
		}
	} else if err != nil {
		return fmt.Errorf("failed to validate configuration: %w", err)
	}

	if requireIdentity {
		if cfg.CustomerID != "" {
			if err := checkCustomerID(cfg.CustomerID); err != nil {
				result = multierror.Append(result, &ValidationError{Param: "CustomerID", Err: err})
			}
		}
		if cfg.RegistrationToken != "" {
			if _, err := uuid.Parse(cfg.RegistrationToken); err != nil {
				result = multierror.Append(result, &ValidationError{Param: "RegistrationToken", Err: errors.New("not a GUID")})
			}
		}
		if cfg.Server != "" {
			if err := v.checkResolvable(ctx, cfg.Server); err != nil {
				result = multierror.Append(result, &ValidationError{Param: "Server", Err: err})
			}
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		logging.Error("Parameter validation failed", "error", err)
		return err
	}
	logging.Debug("Parameters validated", "identity", requireIdentity)
	return nil
}

// checkCustomerID accepts a plain decimal integer. The string is checked as
// is because it is passed to the installer unchanged.
func checkCustomerID(id string) error {
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return errors.New("must be an integer")
	}
	return nil
}

func (v *Validator) checkResolvable(ctx context.Context, host string) error {
	if net.ParseIP(host) != nil {
		return nil
	}
	lookup := v.LookupHost
	if lookup == nil {
		lookup = net.DefaultResolver.LookupHost
	}
	addrs, err := lookup(ctx, host)
	if err != nil {
		return fmt.Errorf("does not resolve: %w", err)
	}
	if len(addrs) == 0 {
		return errors.New("does not resolve to any address")
	}
	logging.Debug("Server resolved", "server", host, "addresses", addrs)
	return nil
}
