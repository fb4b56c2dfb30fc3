// Copyright 2024 TernDB Corp. All rights reserved.
package query

import (
	"fmt"
	"runtime"

	"github.com/terndb/tern/errors"
)

const (
	ErrBadValue         errors.Code = "ErrBadValue"
	ErrIllegalOperation errors.Code = "ErrIllegalOperation"
	ErrInternal         errors.Code = "ErrInternal"
)

func NewErrBadValue(format string, a ...interface{}) error {
	return errors.New(
		ErrBadValue,
		fmt.Sprintf(format, a...),
	)
}

func NewErrIllegalOperation(format string, a ...interface{}) error {
	return errors.New(
		ErrIllegalOperation,
		fmt.Sprintf(format, a...),
	)
}

func NewErrInternalf(format string, a ...interface{}) error {
	preamble := "internal error"
	_, filename, line, ok := runtime.Caller(1)
	if ok {
		preamble = fmt.Sprintf("internal error (%s:%d)", filename, line)
	}
	errorMessage := fmt.Sprintf(format, a...)
	errorMessage = fmt.Sprintf("%s %s", preamble, errorMessage)
	return errors.New(
		ErrInternal,
		errorMessage,
	)
}
