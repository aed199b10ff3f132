package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want HTTPClass
	}{
		{200, ""},
		{204, ""},
		{400, ClassValidation},
		{401, ClassAuth},
		{403, ClassAuth},
		{404, ClassClient},
		{429, ClassClient},
		{500, ClassServer},
		{503, ClassServer},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStatus(tt.code))
		})
	}
}

func TestHTTPErrorPredicates(t *testing.T) {
	err := fmt.Errorf("create project: %w", &HTTPError{Class: ClassValidation, StatusCode: 400, Message: "already exists"})

	assert.True(t, IsValidation(err))
	assert.False(t, IsClient(err))
	assert.False(t, IsAuth(err))
	assert.False(t, IsServer(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, ExitConfig, ExitCode(NewConfigError(PhaseProfiles, nil, "missing profile %s", "x.xml")))
	assert.Equal(t, ExitCompile, ExitCode(NewCompileTaskError(PhaseBuild, nil, "build failed")))
	assert.Equal(t, ExitAnalyze, ExitCode(fmt.Errorf("wrapped: %w", NewAnalyzeTaskError(PhaseTask, KindHeapExhausted, nil, "heap"))))
	assert.Equal(t, ExitGeneric, ExitCode(errors.New("boom")))
	assert.Equal(t, 7, ExitCode(&CommandError{ExitCode: 7, Err: errors.New("x")}))
}

func TestAnalyzeTaskErrorMessage(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewAnalyzeTaskError(PhaseServerStart, KindTimeout, cause, "server did not come up within %s", "5m0s")

	assert.EqualError(t, err, "analysis failed during server start: server did not come up within 5m0s: dial tcp: refused")
	assert.True(t, IsTimeout(err))
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.ErrorIs(t, err, cause)
}
