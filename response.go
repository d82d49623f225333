package aapns

import (
	"encoding/json"
	"strconv"
)

// Response is the decoded result of a successful Post. Per spec.md section
// 3, the body is opportunistically JSON-decoded into Data; a present but
// non-JSON body produces a *FormatError instead of a Response.
type Response struct {
	StatusCode int
	Header     []HeaderField
	Raw        []byte
	Data       interface{}
}

// buildResponse assembles a Response from the decoded :status pseudo-header,
// the remaining response headers, and the concatenated DATA payload.
// Grounded on the teacher's Response.parseHeaders in response.go, adapted
// from fasthttp's byte-slice header model to frame.HeaderField pairs.
func buildResponse(fields []HeaderField, body []byte) (*Response, error) {
	resp := &Response{Raw: body}

	for _, f := range fields {
		if f.Name == ":status" {
			code, err := strconv.Atoi(f.Value)
			if err != nil {
				return nil, &FormatError{Body: body}
			}
			resp.StatusCode = code
			continue
		}
		resp.Header = append(resp.Header, f)
	}

	if len(body) > 0 {
		var data interface{}
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, &FormatError{Body: body}
		}
		resp.Data = data
	}

	return resp, nil
}
