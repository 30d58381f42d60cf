package ctype

// FormatSpecifier maps a resolved type to its printf/scanf conversion
// (without the leading '%'). Returns "" when there is no integer mapping.
func FormatSpecifier(t Type) string {
	switch Normalize(t.Spelling) {
	case "bool", "_Bool", "int", "signed", "signed int", "char", "signed char", "short", "unsigned char", "unsigned short":
		// Sub-int types promote through default argument promotion.
		return "d"
	case "unsigned", "unsigned int":
		return "u"
	case "long", "long int":
		return "ld"
	case "unsigned long", "unsigned long int":
		return "lu"
	case "long long", "long long int":
		return "lld"
	case "unsigned long long", "unsigned long long int":
		return "llu"
	case "size_t", "std::size_t":
		return "zu"
	case "ptrdiff_t", "std::ptrdiff_t":
		return "td"
	}
	return ""
}
