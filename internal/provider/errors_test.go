package provider

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func responseWithStatus(status int, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(`{"error":"nope"}`)),
	}
}

func TestClassifyResponseSuccess(t *testing.T) {
	require.NoError(t, classifyResponse(Twitter, responseWithStatus(200, nil)))
	require.NoError(t, classifyResponse(Twitter, responseWithStatus(201, nil)))
}

func TestClassifyResponseAuth(t *testing.T) {
	for _, status := range []int{401, 403} {
		err := classifyResponse(Twitter, responseWithStatus(status, nil))
		require.True(t, IsAuthError(err), "status %d", status)
		require.False(t, IsTransient(err))
	}
}

func TestClassifyResponseRateLimit(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "120")

	err := classifyResponse(Twitter, responseWithStatus(429, header))
	require.True(t, IsTransient(err))
	require.Equal(t, 2*time.Minute, RetryAfterOf(err))
}

func TestClassifyResponseRateLimitWithoutHeader(t *testing.T) {
	err := classifyResponse(Twitter, responseWithStatus(429, nil))
	require.True(t, IsTransient(err))
	require.Equal(t, time.Duration(0), RetryAfterOf(err))
}

func TestClassifyResponseServerError(t *testing.T) {
	for _, status := range []int{500, 502, 503} {
		err := classifyResponse(Linkedin, responseWithStatus(status, nil))
		require.True(t, IsTransient(err), "status %d", status)
		require.False(t, IsAuthError(err))
	}
}

func TestClassifyResponseClientError(t *testing.T) {
	err := classifyResponse(Facebook, responseWithStatus(400, nil))
	require.True(t, IsPermanent(err))
	require.False(t, IsTransient(err))
}

func TestTransportErrorIsTransient(t *testing.T) {
	err := transportError(Instagram, fmt.Errorf("connection refused"))
	require.True(t, IsTransient(err))
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	require.ErrorIs(t, &AuthError{Provider: Twitter, Err: cause}, cause)
	require.ErrorIs(t, &TransientError{Provider: Twitter, Err: cause}, cause)
	require.ErrorIs(t, &PermanentError{Provider: Twitter, Err: cause}, cause)
}

func TestRetryAfterOfNonRateLimit(t *testing.T) {
	require.Equal(t, time.Duration(0), RetryAfterOf(fmt.Errorf("plain")))
	require.Equal(t, time.Duration(0), RetryAfterOf(nil))
}
