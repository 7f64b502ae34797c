package util

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Inner struct {
		Rate int    `json:"frame_rate" validate:"gte=1,lte=240"`
		Path string `json:"path" validate:"safepath"`
	} `json:"display"`
}

func TestNewValidatorUsesJSONNames(t *testing.T) {
	v := NewValidator()

	var s sample
	s.Inner.Rate = 0
	s.Inner.Path = "../etc/passwd"

	err := v.Struct(s)
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 2)

	require.Equal(t, "display.frame_rate", FieldPath(verrs[0]))
	require.Equal(t, "must be greater than or equal to 1", ValidationMessage(verrs[0]))
	require.Equal(t, "display.path", FieldPath(verrs[1]))
	require.Equal(t, "must be a clean path without '..'", ValidationMessage(verrs[1]))

	s.Inner.Rate = 60
	s.Inner.Path = ""
	require.NoError(t, v.Struct(s))
}

func TestValidatePath(t *testing.T) {
	require.NoError(t, ValidatePath("path", "/var/log/voicecapture/events.jsonl"))
	require.Error(t, ValidatePath("path", ""))
	require.Error(t, ValidatePath("path", "logs/../../secret"))
}

func TestExtractLastError(t *testing.T) {
	require.Equal(t, "second", ExtractLastError("first\nsecond\n\n"))
	require.Empty(t, ExtractLastError("  \n "))
	require.Equal(t, "default: Device or resource busy",
		ExtractLastError("[alsa @ 0x55d1c04e8f00] cannot open audio device\n[in#0 @ 0x7f3a] default: Device or resource busy\n"))
	require.Len(t, ExtractLastError(strings.Repeat("x", 300)), maxErrorLineLength+3)
}

func TestWrapError(t *testing.T) {
	base := errors.New("boom")
	require.Nil(t, WrapError("read", nil))
	err := WrapError("read config", base)
	require.ErrorIs(t, err, base)
	require.Equal(t, "failed to read config: boom", err.Error())
}

func TestCollectValidation(t *testing.T) {
	var s sample
	s.Inner.Rate = 500

	verr := CollectValidation(NewValidator().Struct(s))
	require.Equal(t, 1, verr.Len())
	require.Equal(t, "display.frame_rate", verr.Errors[0].Field)
	require.Equal(t, 500, verr.Errors[0].Value)
	require.Equal(t, "display.frame_rate must be less than or equal to 240", verr.Error())

	verr = CollectValidation(errors.New("not a struct"))
	require.Equal(t, "not a struct", verr.Error())
}
