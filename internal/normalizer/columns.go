package normalizer

import "strings"

// Field is a logical customer column
type Field string

const (
	FieldName  Field = "name"
	FieldEmail Field = "email"
	FieldPhone Field = "phone"
)

// fieldAliases lists accepted headers per field in priority order.
// Entries are already in NormalizeHeader form.
var fieldAliases = map[Field][]string{
	FieldName: {
		"name",
		"customername",
		"fullname",
		"clientname",
		"contactname",
		"displayname",
		"customer",
		"firstname",
	},
	FieldEmail: {
		"email",
		"emailaddress",
		"customeremail",
		"clientemail",
		"contactemail",
		"emailid",
		"mail",
	},
	FieldPhone: {
		"phone",
		"phonenumber",
		"mobile",
		"mobilenumber",
		"contactnumber",
		"telephone",
		"cell",
		"cellphone",
		"tel",
	},
}

var headerSeparators = strings.NewReplacer("_", "", "-", "", " ", "")

// NormalizeHeader lowercases a header and strips separators so that
// "E-Mail", "email_address" and "Email Address" compare equal to their alias.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return headerSeparators.Replace(strings.ToLower(strings.TrimSpace(h)))
}

// Aliases returns the accepted header aliases for a field
func Aliases(f Field) []string {
	out := make([]string, len(fieldAliases[f]))
	copy(out, fieldAliases[f])
	return out
}

// resolve returns the first non-empty cell among the field's aliases
func resolve(values map[string]string, f Field) string {
	for _, alias := range fieldAliases[f] {
		if v := strings.TrimSpace(values[alias]); v != "" {
			return v
		}
	}
	return ""
}

// headerIndex maps normalized header keys to column indices; the first
// column with a given key wins.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := NormalizeHeader(h)
		if key == "" {
			continue
		}
		if _, exists := idx[key]; !exists {
			idx[key] = i
		}
	}
	return idx
}

// rowValues builds a header-keyed mapping for a record
func rowValues(idx map[string]int, record []string) map[string]string {
	values := make(map[string]string, len(idx))
	for key, i := range idx {
		if i < len(record) {
			values[key] = record[i]
		}
	}
	return values
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
