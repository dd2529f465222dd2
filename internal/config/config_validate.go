// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// singleton validator instance
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the singleton validator. Field names are taken from
// koanf tags so error messages name options the way the INI file and
// environment variables do.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := strings.SplitN(fld.Tag.Get("koanf"), ",", 2)[0]
			if tag != "" && tag != "-" {
				return tag
			}
			return fld.Name
		})
	})
	return validate
}

// Validate checks enum and range constraints on every option, reporting
// violations by their configuration path (e.g. "skip.mode must be one of:
// skip volume"). Connection credentials are not validated here; a default
// config must load, and authentication failures surface at startup.
func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, translateFieldError(fe))
	}
	return errors.New(strings.Join(messages, "; "))
}

// optionPath renders a validator namespace like "Config.skip.mode" as the
// option path "skip.mode".
func optionPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// translateFieldError converts a validator field error to a message naming
// the offending option path.
func translateFieldError(fe validator.FieldError) string {
	path := optionPath(fe)
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", path, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", path, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", path, fe.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a host:port listen address", path)
	default:
		return fmt.Sprintf("%s failed %s validation", path, fe.Tag())
	}
}
