package sanitizex

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ProcessJSON redacts a JSON document and re-encodes it.
// Object key order is preserved, so truncation keeps the first MaxItems keys
// as they appear in data.
//
// Returns an error wrapping ErrInvalidJSON if data is not a single valid
// JSON value.
//
// Example:
//
//	body := []byte(`{"username":"admin","password":"secret123"}`)
//	masked, _ := r.ProcessJSON(body)
//	// {"username":"admin","password":"********"}
func (r *Redactor) ProcessJSON(data []byte) ([]byte, error) {
	payload, err := decodeOrdered(data)
	if err != nil {
		return nil, err
	}
	out, err := r.Process(payload)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode redacted json")
	}
	return b, nil
}

// ProcessJSONString is ProcessJSON for string input.
func (r *Redactor) ProcessJSONString(data string) (string, error) {
	b, err := r.ProcessJSON([]byte(data))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ProcessJSON redacts a JSON document with the default Redactor.
func ProcessJSON(data []byte) ([]byte, error) {
	return defaultRedactor.Load().ProcessJSON(data)
}
