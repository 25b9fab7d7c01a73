// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package errors_test

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/molecula/rdfsail/errors"
	"github.com/stretchr/testify/assert"
)

const (
	errUncoded       errors.Code = errors.ErrUncoded
	errTableNotFound errors.Code = "TableNotFound"
	errLocked        errors.Code = "Locked"
)

func TestErrors(t *testing.T) {
	t.Run("Is", func(t *testing.T) {
		uncoded := errors.New(errUncoded, "uncoded error")
		tnf := errors.New(errTableNotFound, "table not found")
		formatted := errors.Newf(errLocked, "locked by %d", 42)

		tests := []struct {
			err    error
			target errors.Code
			exp    bool
		}{
			{err: uncoded, target: errUncoded, exp: true},
			{err: uncoded, target: errTableNotFound, exp: false},
			{err: tnf, target: errTableNotFound, exp: true},
			{err: errors.Wrap(tnf, "with message"), target: errTableNotFound, exp: true},
			{err: formatted, target: errLocked, exp: true},
			{err: fmt.Errorf("plain"), target: errLocked, exp: false},
		}

		for i, test := range tests {
			t.Run(fmt.Sprintf("test-%d", i), func(t *testing.T) {
				assert.Equal(t, test.exp, errors.Is(test.err, test.target))
			})
		}
	})

	t.Run("Coded", func(t *testing.T) {
		err := errors.Coded(errLocked, io.ErrUnexpectedEOF, "reading lock file")
		assert.True(t, errors.Is(err, errLocked))
		assert.True(t, stderrors.Is(err, io.ErrUnexpectedEOF))
		assert.Equal(t, "reading lock file: unexpected EOF", err.Error())
		assert.Equal(t, errLocked, errors.CodeOf(errors.Wrap(err, "outer")))
		assert.Nil(t, errors.Coded(errLocked, nil, "nothing"))
	})

	t.Run("Newf", func(t *testing.T) {
		err := errors.Newf(errTableNotFound, "table %q", "p1")
		assert.Equal(t, `table "p1"`, err.Error())
		assert.Equal(t, errors.Code(""), errors.CodeOf(io.EOF))
	})
}
