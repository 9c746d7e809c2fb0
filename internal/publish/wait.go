// SPDX-License-Identifier: AGPL-3.0-or-later

package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/bartekus/lockstep/internal/ecosystem"
)

// ErrPropagationTimeout is returned when a published version does not
// become visible on its registry in time.
var ErrPropagationTimeout = errors.New("registry propagation timed out")

var errNotVisible = errors.New("version not visible yet")

// Propagation configures the wait between dependent publishes.
type Propagation struct {
	InitialDelay time.Duration `yaml:"initial_delay" validate:"gt=0"`
	MaxDelay     time.Duration `yaml:"max_delay" validate:"gtefield=InitialDelay"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
}

// DefaultPropagation polls after 2s, doubling up to 30s, for at most 5m.
var DefaultPropagation = Propagation{
	InitialDelay: 2 * time.Second,
	MaxDelay:     30 * time.Second,
	Timeout:      5 * time.Minute,
}

// WaitForPropagation polls prober until pkg@version is served. Probe errors
// are retried like a negative answer. It returns an error wrapping
// ErrPropagationTimeout when p.Timeout elapses, or the parent context's
// error when that ends first.
func WaitForPropagation(ctx context.Context, prober ecosystem.RegistryProber, pkg ecosystem.Package, version string, p Propagation) error {
	log := zerolog.Ctx(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = p.MaxDelay

	attempts := 0
	_, err := backoff.Retry(waitCtx, func() (bool, error) {
		attempts++
		ok, err := prober.Published(waitCtx, pkg, version)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, errNotVisible
		}
		return true, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(p.Timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().Err(err).Str("package", pkg.Name).Dur("retry_in", next).Msg("waiting for registry")
		}),
	)
	if err == nil {
		log.Debug().Str("package", pkg.Name).Int("attempts", attempts).Msg("version visible on registry")
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s@%s not visible after %s (%d probes): %v", ErrPropagationTimeout, pkg.Name, version, p.Timeout, attempts, err)
}
