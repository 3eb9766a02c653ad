package query

import "encoding/json"

// DataMode tells the builder how the caller is going to consume rows.
type DataMode string

const (
	DataModeScroll DataMode = "scroll"
	DataModeTree   DataMode = "tree"
)

// FieldType shapes the bound side of a filter.
type FieldType string

const (
	FieldNumeric FieldType = "N"
	FieldDate    FieldType = "D"
)

type SortDirection string

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

// Control describes filters, ordering, paging and tree traversal to apply on
// top of a select template.
type Control struct {
	Filters  []Filter  `json:"filters,omitempty"`
	Sorts    []Sort    `json:"sorts,omitempty"`
	Range    *Range    `json:"range,omitempty"`
	Locate   *Locate   `json:"locate,omitempty"`
	TreeMode *TreeMode `json:"treeMode,omitempty"`
	Count    bool      `json:"count,omitempty"`
	DataMode DataMode  `json:"datamode,omitempty"`
}

type Filter struct {
	Field     string    `json:"field"`
	Operator  string    `json:"operator,omitempty"`
	Value     any       `json:"value"`
	Cast      string    `json:"cast,omitempty"`
	FieldType FieldType `json:"fieldtype,omitempty"`
}

type Sort struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"sort,omitempty"`
}

// Range is the requested page window. Zero ChunkEnd and Amount mean unset.
type Range struct {
	ChunkStart *int `json:"chunk_start,omitempty"`
	ChunkEnd   *int `json:"chunk_end,omitempty"`
	Amount     *int `json:"amount,omitempty"`
}

type Locate struct {
	Field    string `json:"field"`
	Locating bool   `json:"locating"`
	Value    any    `json:"value"`
}

// TreeMode configures hierarchical output. A non-nil HidValue restricts the
// rows to one parent; HidValueSet with a nil HidValue restricts them to roots.
type TreeMode struct {
	KeyField      string `json:"keyField"`
	HidField      string `json:"hidField"`
	HidValue      any    `json:"hidValue,omitempty"`
	HidValueSet   bool   `json:"-"`
	HasChildField string `json:"hasChildField,omitempty"`
	FilterByHid   bool   `json:"filterByHid,omitempty"`
}

func (t *TreeMode) UnmarshalJSON(data []byte) error {
	type plain TreeMode
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	_, p.HidValueSet = keys["hidValue"]
	*t = TreeMode(p)
	return nil
}

// HasHidValue reports whether the rows are restricted to one parent value.
func (t *TreeMode) HasHidValue() bool {
	return t.HidValueSet || t.HidValue != nil
}

// MarshalJSON keeps an explicit null hidValue, which omitempty would drop.
func (t TreeMode) MarshalJSON() ([]byte, error) {
	type plain TreeMode
	out := struct {
		plain
		HidValue json.RawMessage `json:"hidValue,omitempty"`
	}{plain: plain(t)}
	if t.HasHidValue() {
		v, err := json.Marshal(t.HidValue)
		if err != nil {
			return nil, err
		}
		out.HidValue = v
	}
	return json.Marshal(out)
}

// WithHidValue sets the parent value filter, nil meaning "roots only".
func (t *TreeMode) WithHidValue(v any) *TreeMode {
	t.HidValue = v
	t.HidValueSet = true
	return t
}

// Int is a helper for building Range literals.
func Int(v int) *int {
	return &v
}

// Window is the resolved page window of a built query.
type Window struct {
	Start     int `json:"chunk_start"`
	End       int `json:"chunk_end"`
	RealStart int `json:"-"`
}
