package breakdown

// Column is the identity of one data column, fused from the two header rows.
// Key is unique within a Schema; Top and Bottom keep the labels as they
// appeared so they can be written back into the activity and shift targets.
type Column struct {
	Top    string
	Bottom string
	Key    string
}

// Schema is the ordered list of column identities for a sheet.
type Schema []Column

func (s Schema) Keys() []string {
	keys := make([]string, len(s))
	for i, col := range s {
		keys[i] = col.Key
	}
	return keys
}
