/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every struct tag on c and additionally parses
// IOTimeout, which validator's built-in tags can't express.
func (c *ServerConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	if _, err := time.ParseDuration(c.IOTimeout); err != nil {
		return fmt.Errorf("io_timeout: invalid duration %q: %w", c.IOTimeout, err)
	}
	return nil
}

// formatValidationErrors turns validator's field-level errors into a
// single message naming every offending field, instead of validator's
// default Go-syntax-flavored Error() string.
func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q validation (value=%v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
