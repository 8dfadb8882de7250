package airbrake

import (
	"net/http"

	"github.com/segmentio/encoding/json"
)

const (
	// maxNoticeLength is the payload ceiling accepted by the notices endpoint
	maxNoticeLength = 64000
	// truncation starts at this per-value limit and halves every round
	truncationStartLimit = 1024
	maxTruncationRounds  = 8

	jsonContentType = "application/json"
)

// Serializer renders notices in a wire format and interprets the server reply
type Serializer interface {
	ContentType() string
	Serialize(n *Notice) ([]byte, error)
	ParseResponse(statusCode int, body []byte) *Response
}

// JSONSerializer speaks the v3 JSON protocol
type JSONSerializer struct{}

func (JSONSerializer) ContentType() string {
	return jsonContentType
}

func (JSONSerializer) Serialize(n *Notice) ([]byte, error) {
	return marshalBounded(n)
}

// ParseResponse treats 201 Created as success. The body is parsed for id and
// url regardless of status; a malformed body leaves them empty.
func (JSONSerializer) ParseResponse(statusCode int, body []byte) *Response {
	resp := &Response{Status: StatusRequestError}
	if statusCode == http.StatusCreated {
		resp.Status = StatusSuccess
	}

	var payload struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		resp.ID = payload.ID
		resp.URL = payload.URL
	}
	return resp
}

// ToJSONString serializes n, truncating parameter maps when the result does
// not fit into the payload ceiling. An oversized result after all rounds is
// returned as is.
func ToJSONString(n *Notice) (string, error) {
	b, err := marshalBounded(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FromJSONString parses a serialized notice
func FromJSONString(s string) (*Notice, error) {
	n := &Notice{}
	if err := json.Unmarshal([]byte(s), n); err != nil {
		return nil, err
	}
	return n, nil
}

func marshalBounded(n *Notice) ([]byte, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}

	// work on a shallow copy so the caller's maps stay intact
	trimmed := *n
	limit := truncationStartLimit
	for round := 0; round < maxTruncationRounds && len(b) > maxNoticeLength; round++ {
		trimmed.EnvironmentVars = TruncateParameters(n.EnvironmentVars, limit)
		trimmed.Params = TruncateParameters(n.Params, limit)
		trimmed.Session = TruncateParameters(n.Session, limit)

		b, err = json.Marshal(&trimmed)
		if err != nil {
			return nil, err
		}
		limit /= 2
	}

	return b, nil
}
