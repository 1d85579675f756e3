package archive

import "encoding/json"

// errPathNotFoundCode is the baton-do error code denoting "path does not
// exist", used by Exists.
const errPathNotFoundCode = -310000

// wireAVU is the JSON-wire shape of an AVU in a baton-do envelope.
type wireAVU struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
	Units     string `json:"units,omitempty"`
}

func toWireAVUs(avus []AVU) []wireAVU {
	wire := make([]wireAVU, len(avus))
	for i, a := range avus {
		wire[i] = wireAVU{Attribute: a.WireAttribute(), Value: a.Value, Units: a.Units}
	}

	return wire
}

// wireTarget identifies a collection or a data object within a collection,
// optionally carrying AVUs or access entries for metamod/chmod requests.
type wireTarget struct {
	Collection string    `json:"collection"`
	DataObject string    `json:"data_object,omitempty"` //nolint: tagliatelle
	AVUs       []wireAVU `json:"avus,omitempty"`
}

// wireRequest is a single baton-do request envelope.
type wireRequest struct {
	Operation string         `json:"operation"`
	Arguments map[string]any `json:"arguments"`
	Target    wireTarget     `json:"target"`
}

// wireResponse is a single baton-do response envelope: exactly one of Result
// or Error is populated.
type wireResponse struct {
	Result *wireResult `json:"result,omitempty"`
	Error  *wireError  `json:"error,omitempty"`
}

type wireResult struct {
	Single   json.RawMessage   `json:"single,omitempty"`
	Multiple []json.RawMessage `json:"multiple,omitempty"`
}

type wireError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// wireItem is a baton-do list/metaquery result item: a collection, or a data
// object within one, plus optional listed AVUs.
type wireItem struct {
	Collection string     `json:"collection"`
	DataObject string     `json:"data_object,omitempty"` //nolint: tagliatelle
	AVUs       []wireAVU  `json:"avus,omitempty"`
	Contents   []wireItem `json:"contents,omitempty"`
}

func (i wireItem) path() string {
	if i.DataObject == "" {
		return i.Collection
	}

	return i.Collection + "/" + i.DataObject
}
