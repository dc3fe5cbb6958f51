package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"result": "success"}, "ignored\n")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.NotContains(t, buf.String(), "ignored")
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"result": "success"}, "✓ Defined dataset\n")
	require.NoError(t, err)
	assert.Equal(t, "✓ Defined dataset\n", buf.String())
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeNotFound, "cannot load dataset", map[string]string{"id": "/data"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "cannot load dataset", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error(ErrCodeGeneric, "store failed", "disk full"))
			assert.Contains(t, buf.String(), "Error [E001]: store failed")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details: disk full")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}

	formatter.VerboseLog("Loaded %d blueprint(s)", 3)
	assert.Empty(t, out.String())
	assert.Equal(t, "Loaded 3 blueprint(s)\n", diag.String())

	formatter.Verbose = false
	formatter.VerboseLog("hidden")
	assert.NotContains(t, diag.String(), "hidden")
}

func TestFailExitCodes(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{ErrCodeInvalidArgs, ExitCommandError},
		{ErrCodeConfig, ExitCommandError},
		{ErrCodeLoadFailed, ExitCommandError},
		{ErrCodeNotFound, ExitFailure},
		{ErrCodeConnection, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			formatter := &OutputFormatter{Format: "text", Writer: &bytes.Buffer{}}
			cause := errors.New("cause")
			err := fail(formatter, tt.code, "message", cause)
			assert.Equal(t, tt.want, GetExitCode(err))
			assert.ErrorIs(t, err, cause)
			assert.Contains(t, err.Error(), tt.code)
		})
	}
}

func TestStoreFailureCodes(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errs.New(errs.CodeStoreConnection, "refused"), ErrCodeConnection},
		{errs.New(errs.CodeEntryNotFound, "missing"), ErrCodeNotFound},
		{errs.New(errs.CodeEntryExists, "taken"), ErrCodeWriteFailed},
		{errs.New(errs.CodeWriteFailure, "disk"), ErrCodeWriteFailed},
		{errs.New(errs.CodeInvalidFrequency, "bad"), ErrCodeInvalidArgs},
		{errors.New("other"), ErrCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.err.Error(), func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: buf}
			_ = storeFailure(formatter, "failed", tt.err)

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.want, resp.Error.Code)
		})
	}
}

func TestGetExitCodePlainError(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))
}
