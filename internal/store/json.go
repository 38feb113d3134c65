package store

import "encoding/json"

func unmarshalInto(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
