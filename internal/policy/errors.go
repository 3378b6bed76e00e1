package policy

import "errors"

var (
	ErrUnknownControl         = errors.New("unknown control")
	ErrUnknownOperator        = errors.New("unknown operator")
	ErrUnknownType            = errors.New("unknown control type")
	ErrMalformedMandatorySpec = errors.New("malformed mandatory control spec")
	ErrInvalidDefinition      = errors.New("invalid control definition")
)
