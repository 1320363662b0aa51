package fetch

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// featureCollection is one page of the registry's facilities endpoint.
type featureCollection struct {
	Type     string    `json:"type"`
	Count    int       `json:"count"`
	Next     *string   `json:"next"`
	Features []feature `json:"features"`
}

type feature struct {
	ID         flexString `json:"id"`
	Properties properties `json:"properties"`
	Geometry   *geometry  `json:"geometry"`
}

type properties struct {
	OSID               flexString    `json:"os_id"`
	Name               flexString    `json:"name"`
	Address            flexString    `json:"address"`
	Country            flexString    `json:"country"`
	CountryName        flexString    `json:"country_name"`
	IsClosed           flexBool      `json:"is_closed"`
	CreatedAt          flexString    `json:"created_at"`
	UpdatedAt          flexString    `json:"updated_at"`
	Contributor        flexString    `json:"contributor"`
	Sector             flexString    `json:"sector"`
	ProcessingActivity flexString    `json:"processing_activity"`
	Contributors       []contributor `json:"contributors"`
}

type contributor struct {
	ID   flexString `json:"id"`
	Name flexString `json:"name"`
}

type geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// flexString accepts a JSON string, number, bool, null or array of those.
// Arrays are joined with ", ".
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}

	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(strings.TrimSpace(v))
	case '[':
		var items []flexString
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if it != "" {
				parts = append(parts, string(it))
			}
		}
		*s = flexString(strings.Join(parts, ", "))
	case '{':
		// Nested objects carry no value we keep.
		*s = ""
	default:
		*s = flexString(string(data))
	}
	return nil
}

// flexBool accepts a JSON bool, null, or a string/number spelling of one.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var raw flexString
	if err := raw.UnmarshalJSON(data); err != nil {
		return err
	}
	v, err := strconv.ParseBool(strings.ToLower(string(raw)))
	*b = flexBool(err == nil && v)
	return nil
}
