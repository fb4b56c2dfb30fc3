// Copyright 2024 TernDB Corp. All rights reserved.
package errors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/terndb/tern/errors"
)

const errTest errors.Code = "ErrTest"

func TestCodedErrors(t *testing.T) {
	err := errors.New(errTest, "something broke")
	assert.True(t, errors.Is(err, errTest))
	assert.False(t, errors.Is(err, errors.Code("ErrOther")))
	assert.Equal(t, "something broke", err.Error())
	assert.Equal(t, errTest, errors.CodeOf(err))
}

func TestWrappedCodeSurvives(t *testing.T) {
	err := errors.New(errTest, "inner")
	wrapped := errors.Wrap(err, "outer")
	assert.True(t, errors.Is(wrapped, errTest))
	assert.Equal(t, errTest, errors.CodeOf(wrapped))
	assert.Contains(t, wrapped.Error(), "outer")
}

func TestUncoded(t *testing.T) {
	err := errors.Errorf("plain %s", "failure")
	assert.Equal(t, errors.ErrUncoded, errors.CodeOf(err))
	assert.False(t, errors.Is(err, errTest))
}

func TestNewf(t *testing.T) {
	err := errors.Newf(errTest, "n=%d", 3)
	assert.True(t, errors.Is(err, errTest))
	assert.Equal(t, "n=3", err.Error())
}
