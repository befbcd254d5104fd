package transcribe

import (
	"errors"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestAWSBackend_ClassifyByAPIErrorCode(t *testing.T) {
	b := &AWSBackend{}

	cases := map[string]ErrorClass{
		"UnrecognizedClientException": ErrorAuth,
		"AccessDeniedException":       ErrorAuth,
		"BadRequestException":         ErrorAuth,
		"ThrottlingException":         ErrorRetryable,
		"InternalFailureException":    ErrorRetryable,
	}
	for code, want := range cases {
		err := &smithy.GenericAPIError{Code: code, Message: "boom"}
		assert.Equal(t, want, b.Classify(err), code)
	}
}

func TestAWSBackend_ClassifyFallsBackToMessageSubstring(t *testing.T) {
	b := &AWSBackend{}
	err := errors.New("request failed: invalid security token provided")
	assert.Equal(t, ErrorAuth, b.Classify(err))
}

func TestAWSBackend_ClassifyNilIsRetryable(t *testing.T) {
	b := &AWSBackend{}
	assert.Equal(t, ErrorRetryable, b.Classify(nil))
}
