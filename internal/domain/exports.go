package domain

import (
	interfaces "devid/internal/domain/interfaces"
	types "devid/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Alias       = types.Alias
	DeviceID    = types.DeviceID
	Purpose     = types.Purpose
	KeySpec     = types.KeySpec
	KeyHandle   = types.KeyHandle
	DeviceClaim = types.DeviceClaim
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	KeyStore        = interfaces.KeyStore
	IdentityService = interfaces.IdentityService
)

const (
	DefaultAlias   = types.DefaultAlias
	CurveP256      = types.CurveP256
	AlgorithmES256 = types.AlgorithmES256
	NonceSize      = types.NonceSize
	PurposeSign    = types.PurposeSign
	PurposeVerify  = types.PurposeVerify
)

var (
	DefaultKeySpec   = types.DefaultKeySpec
	CanonicalMessage = types.CanonicalMessage
)
