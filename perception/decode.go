package perception

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.aimuz.me/basar/internal/types"
)

// wireObject is one entry of the "objects" array when given as an object.
type wireObject struct {
	Label         string          `json:"label"`
	Name          string          `json:"name"`
	BBox          []float64       `json:"bbox"`
	DistanceLabel string          `json:"distance_label"`
	Distance      json.RawMessage `json:"distance"`
}

// decodeResult maps a service payload onto a Result.
// Only a payload that is not a JSON object is an error; fields that are
// missing or of the wrong type are ignored.
func decodeResult(mode types.Mode, data []byte) (types.Result, error) {
	result := types.Result{Mode: mode, Kind: kindFor(mode)}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return types.Result{}, fmt.Errorf("decode response: %w", err)
	}

	result.Message = stringField(fields["message"])
	switch result.Kind {
	case types.ResultDetection:
		result.Objects = decodeObjects(fields["objects"])
		// Detection services send their summary as "text".
		result.Summary = stringField(fields["text"])
		if result.Summary == "" {
			result.Summary = stringField(fields["summary"])
		}
	case types.ResultText:
		result.Text = stringField(fields["text"])
	}
	return result, nil
}

func kindFor(mode types.Mode) types.ResultKind {
	if mode == types.ModeReading {
		return types.ResultText
	}
	return types.ResultDetection
}

// decodeObjects accepts both plain label strings and detailed objects.
func decodeObjects(raw json.RawMessage) []types.Object {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}

	objects := make([]types.Object, 0, len(items))
	for _, item := range items {
		var label string
		if err := json.Unmarshal(item, &label); err == nil {
			if label = strings.TrimSpace(label); label != "" {
				objects = append(objects, types.Object{Label: label})
			}
			continue
		}

		var w wireObject
		if err := json.Unmarshal(item, &w); err != nil {
			continue
		}
		obj := types.Object{
			Label:    strings.TrimSpace(w.Label),
			Distance: strings.TrimSpace(w.DistanceLabel),
		}
		if obj.Label == "" {
			obj.Label = strings.TrimSpace(w.Name)
		}
		if obj.Label == "" {
			continue
		}
		if obj.Distance == "" {
			obj.Distance = distanceField(w.Distance)
		}
		if len(w.BBox) == 4 {
			obj.Box = types.BoundingBox{X1: w.BBox[0], Y1: w.BBox[1], X2: w.BBox[2], Y2: w.BBox[3]}
			obj.HasBox = true
		}
		objects = append(objects, obj)
	}
	if len(objects) == 0 {
		return nil
	}
	return objects
}

func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// distanceField renders a numeric distance in meters, or passes a string through.
func distanceField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var meters float64
	if err := json.Unmarshal(raw, &meters); err == nil {
		return strconv.FormatFloat(meters, 'f', -1, 64) + "m"
	}
	return strings.TrimSpace(stringField(raw))
}
