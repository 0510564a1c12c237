package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for structural and semantic errors.
//
// Structural validation (required fields, enums, ranges) runs through the
// validator tags on the Config types; semantic checks that span sections
// (mounts referencing declared drivers, duplicate names) run afterwards.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			return fmt.Errorf("invalid configuration: %s", formatValidationErrors(errs))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return validateSemantics(cfg)
}

// formatValidationErrors renders validator errors into a readable list.
func formatValidationErrors(errs validator.ValidationErrors) string {
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("field %s failed %q", e.Namespace(), e.Tag())
	}
	return msg
}

// validateSemantics runs the cross-section checks.
func validateSemantics(cfg *Config) error {
	driverNames := make(map[string]bool)
	for _, driver := range cfg.Drivers {
		if driverNames[driver.Name] {
			return fmt.Errorf("duplicate driver name %q", driver.Name)
		}
		driverNames[driver.Name] = true
	}

	// Index collisions within a group break child-driver inference.
	type placement struct {
		group string
		index uint64
	}
	placements := make(map[placement]string)
	for _, driver := range cfg.Drivers {
		group := driverGroupName(driver.Type)
		for _, idx := range []uint64{driver.Index, driver.Index + 1} {
			key := placement{group: group, index: idx}
			if other, ok := placements[key]; ok && other != driver.Name {
				return fmt.Errorf("driver %q collides with %q at %s index %d", driver.Name, other, group, idx)
			}
			placements[key] = driver.Name
		}
	}

	mountPaths := make(map[string]bool)
	for _, mount := range cfg.Mounts {
		if !driverNames[mount.Driver] {
			return fmt.Errorf("mount %q references undeclared driver %q", mount.Path, mount.Driver)
		}
		if mountPaths[mount.Path] {
			return fmt.Errorf("duplicate mount path %q", mount.Path)
		}
		mountPaths[mount.Path] = true
	}

	return nil
}
