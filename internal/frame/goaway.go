package frame

import "fmt"

// ErrorCode is an HTTP/2 error code (https://tools.ietf.org/html/rfc7540#section-7).
type ErrorCode uint32

const (
	ErrCodeNo                 ErrorCode = 0x0
	ErrCodeProtocol           ErrorCode = 0x1
	ErrCodeInternal           ErrorCode = 0x2
	ErrCodeFlowControl        ErrorCode = 0x3
	ErrCodeSettingsTimeout    ErrorCode = 0x4
	ErrCodeStreamClosed       ErrorCode = 0x5
	ErrCodeFrameSize          ErrorCode = 0x6
	ErrCodeRefusedStream      ErrorCode = 0x7
	ErrCodeCancel             ErrorCode = 0x8
	ErrCodeCompression        ErrorCode = 0x9
	ErrCodeConnect            ErrorCode = 0xa
	ErrCodeEnhanceYourCalm    ErrorCode = 0xb
	ErrCodeInadequateSecurity ErrorCode = 0xc
	ErrCodeHTTP11Required     ErrorCode = 0xd
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeNo:
		return "NO_ERROR"
	case ErrCodeProtocol:
		return "PROTOCOL_ERROR"
	case ErrCodeInternal:
		return "INTERNAL_ERROR"
	case ErrCodeFlowControl:
		return "FLOW_CONTROL_ERROR"
	case ErrCodeSettingsTimeout:
		return "SETTINGS_TIMEOUT"
	case ErrCodeStreamClosed:
		return "STREAM_CLOSED"
	case ErrCodeFrameSize:
		return "FRAME_SIZE_ERROR"
	case ErrCodeRefusedStream:
		return "REFUSED_STREAM"
	case ErrCodeCancel:
		return "CANCEL"
	case ErrCodeCompression:
		return "COMPRESSION_ERROR"
	case ErrCodeConnect:
		return "CONNECT_ERROR"
	case ErrCodeEnhanceYourCalm:
		return "ENHANCE_YOUR_CALM"
	case ErrCodeInadequateSecurity:
		return "INADEQUATE_SECURITY"
	case ErrCodeHTTP11Required:
		return "HTTP_1_1_REQUIRED"
	default:
		return fmt.Sprintf("ERROR_CODE(%d)", uint32(c))
	}
}

// GoAway is a decoded GOAWAY frame payload
// (https://tools.ietf.org/html/rfc7540#section-6.8).
type GoAway struct {
	LastStreamID uint32
	Code         ErrorCode
	Data         []byte
}

func (ga GoAway) Error() string {
	return fmt.Sprintf("GOAWAY: last_stream=%d code=%s data=%q", ga.LastStreamID, ga.Code, ga.Data)
}

// DecodeGoAway parses a GOAWAY frame payload.
func DecodeGoAway(h *Header) (GoAway, error) {
	if len(h.Payload) < 8 {
		return GoAway{}, ErrShortPayload
	}
	ga := GoAway{
		LastStreamID: uint32be(h.Payload) & (1<<31 - 1),
		Code:         ErrorCode(uint32be(h.Payload[4:8])),
	}
	if len(h.Payload) > 8 {
		ga.Data = append([]byte(nil), h.Payload[8:]...)
	}
	return ga, nil
}
