package authsvc

import (
	"context"
	"errors"

	"github.com/MrEthical07/otpflow"
)

// SeedFixture creates the active test account described by cfg. An existing
// account is left untouched.
func SeedFixture(ctx context.Context, dir Directory, svc *Service, cfg otpflow.FixtureConfig) error {
	if !cfg.Enabled {
		return nil
	}
	role, err := otpflow.ParseRole(cfg.Role)
	if err != nil {
		return err
	}
	hash, err := svc.Hasher().Hash(cfg.Password)
	if err != nil {
		return err
	}
	err = dir.Create(ctx, &Account{
		Email:        cfg.Email,
		PasswordHash: hash,
		Role:         role,
		Status:       StatusActive,
	})
	if errors.Is(err, ErrAccountExists) {
		return nil
	}
	return err
}
