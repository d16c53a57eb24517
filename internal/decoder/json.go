package decoder

import "encoding/json"

func jsonUnmarshalAny(line []byte) (any, error) {
	var v any
	if err := json.Unmarshal(line, &v); err != nil {
		return nil, err
	}
	return v, nil
}
