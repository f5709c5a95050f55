package scenario

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// FailureTransport is the failure reason for requests that got no response.
const FailureTransport = "transport"

// errorCodePath locates the machine-readable code in the reviewer service's
// error envelope: {"error": {"code": "PR_EXISTS", "message": "..."}}.
const errorCodePath = "error.code"

// classifyFailure names the reason a response did not pass the check. The
// service's error code is used when the body carries one, otherwise the
// status code.
func classifyFailure(status int, body []byte) string {
	if len(body) > 0 && gjson.ValidBytes(body) {
		code := gjson.GetBytes(body, errorCodePath)
		if code.Type == gjson.String && code.Str != "" {
			return code.Str
		}
	}
	return fmt.Sprintf("http_%d", status)
}
