package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"service error code", 409, `{"error":{"code":"PR_EXISTS","message":"PR id already exists"}}`, "PR_EXISTS"},
		{"not found code", 404, `{"error":{"code":"NOT_FOUND","message":"resource not found"}}`, "NOT_FOUND"},
		{"plain text body", 500, "internal error", "http_500"},
		{"json without code", 400, `{"message":"bad"}`, "http_400"},
		{"non-string code", 400, `{"error":{"code":42}}`, "http_400"},
		{"empty body", 502, "", "http_502"},
		{"unexpected success", 200, `{"pr":{}}`, "http_200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyFailure(tt.status, []byte(tt.body)))
		})
	}
}
