package server

import (
	"context"
	"errors"
	"strconv"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/retry"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/config"
	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
)

// Debt model settings and the values restored after a run.
const (
	SettingDevelopmentCost = "sonar.technicalDebt.developmentCost"
	SettingRatingGrid      = "sonar.technicalDebt.ratingGrid"

	DefaultDevelopmentCost = 30
	DefaultRatingGrid      = "0.05,0.1,0.2,0.5"
)

// CreateProject provisions the project of the active endpoint. An existing
// project is accepted, generic client errors are retried within the budget,
// auth and server errors are fatal.
func (l *Lifecycle) CreateProject(ctx context.Context) error {
	key := l.Endpoint().ProjectKey
	timeout := config.SetThen(l.cfg.Sonar.Timeout, config.DefaultTimeout)
	budget := config.SetThen(l.cfg.Sonar.CreateRetries, config.DefaultCreateRetries)

	l.logger.Info("creating project", "key", key)
	err := retry.Until(ctx, retry.Options{
		Interval:  retry.Constant(l.pollInterval(), uint64(budget)),
		Deadline:  l.clock.Now().Add(timeout),
		Immediate: true,
		Clock:     l.clock,
	}, func(ctx context.Context) (bool, error) {
		err := l.API().CreateProject(ctx, key, key)
		switch {
		case err == nil:
			return true, nil
		case errs.IsValidation(err):
			l.logger.Info("project already exists", "key", key, "detail", err)
			return true, nil
		case errs.IsClient(err):
			l.logger.Warn("project creation failed, retrying", "key", key, "error", err)
			return false, err
		default:
			return false, retry.Permanent(err)
		}
	})

	switch {
	case err == nil:
		l.logger.Info("project ready", "key", key)
		return nil
	case errors.Is(err, retry.ErrDeadline):
		return errs.NewAnalyzeTaskError(errs.PhaseProjectCreate, errs.KindTimeout, err, "project %s was not created within %s", key, timeout)
	case errors.Is(err, retry.ErrBudgetExhausted):
		return errs.NewAnalyzeTaskError(errs.PhaseProjectCreate, errs.KindGeneric, err, "project %s creation exceeded %d retries", key, budget)
	default:
		return errs.NewAnalyzeTaskError(errs.PhaseProjectCreate, errs.KindGeneric, err, "project %s could not be created", key)
	}
}

// ApplyDebtSettings pushes the user supplied debt model coefficients.
func (l *Lifecycle) ApplyDebtSettings(ctx context.Context) error {
	for key, value := range l.debtOverrides() {
		if err := l.API().SetSetting(ctx, key, value); err != nil {
			return errs.NewAnalyzeTaskError(errs.PhaseSettings, errs.KindGeneric, err, "failed to set %s", key)
		}
		l.logger.Info("server setting applied", "key", key, "value", value)
	}
	return nil
}

// RestoreDebtSettings resets every coefficient ApplyDebtSettings changed to
// the server defaults. Failures are logged only.
func (l *Lifecycle) RestoreDebtSettings(ctx context.Context) {
	defaults := map[string]string{
		SettingDevelopmentCost: strconv.Itoa(DefaultDevelopmentCost),
		SettingRatingGrid:      DefaultRatingGrid,
	}
	for key := range l.debtOverrides() {
		if err := l.API().SetSetting(ctx, key, defaults[key]); err != nil {
			l.logger.Warn("failed to restore server setting", "key", key, "error", err)
		}
	}
}

func (l *Lifecycle) debtOverrides() map[string]string {
	overrides := map[string]string{}
	if l.env.DevCost != "" {
		overrides[SettingDevelopmentCost] = l.env.DevCost
	}
	if l.env.RatingGrid != "" {
		overrides[SettingRatingGrid] = l.env.RatingGrid
	}
	return overrides
}
