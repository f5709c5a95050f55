package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadValidator(t *testing.T) {
	pv, err := NewPayloadValidator()
	require.NoError(t, err)

	assert.NoError(t, pv.Validate([]byte(`{"pull_request_id":"pr-load-1-0","pull_request_name":"Load test PR","author_id":"u1"}`)))

	invalid := map[string]string{
		"not json":      `{`,
		"missing field": `{"pull_request_id":"a","pull_request_name":"b"}`,
		"empty string":  `{"pull_request_id":"","pull_request_name":"b","author_id":"c"}`,
		"wrong type":    `{"pull_request_id":1,"pull_request_name":"b","author_id":"c"}`,
		"extra field":   `{"pull_request_id":"a","pull_request_name":"b","author_id":"c","status":"OPEN"}`,
		"not an object": `["a","b","c"]`,
	}
	for name, body := range invalid {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, pv.Validate([]byte(body)))
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	var empty ValidationErrors
	assert.Equal(t, "", empty.Error())

	pv, err := NewPayloadValidator()
	require.NoError(t, err)

	err = pv.Validate([]byte(`{"pull_request_id":"","pull_request_name":"","author_id":"c"}`))
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
	assert.Contains(t, err.Error(), "payload.pull_request_id")
}
