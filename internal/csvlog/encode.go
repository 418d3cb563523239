package csvlog

import "strings"

// Header is the first line of every output file.
const Header = "channel,sender,world,message"

// EncodeField quotes v when it contains a comma or a double quote,
// doubling any embedded quotes. Other values pass through unchanged.
func EncodeField(v string) string {
	if !strings.ContainsAny(v, `,"`) {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// EncodeRow encodes each field and joins them with commas.
// The result has no trailing delimiter or newline.
func EncodeRow(fields ...string) string {
	encoded := make([]string, len(fields))
	for i, f := range fields {
		encoded[i] = EncodeField(f)
	}
	return strings.Join(encoded, ",")
}
