package utils

// ToStringSlice keeps the string elements of a decoded JSON array.
func ToStringSlice(slice []any) []string {
	stringSlice := make([]string, 0, len(slice))
	for _, v := range slice {
		if s, ok := v.(string); ok {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}

// FirstString returns the first string element of a decoded JSON array.
func FirstString(slice []any) (string, bool) {
	s := ToStringSlice(slice)
	if len(s) == 0 {
		return "", false
	}
	return s[0], true
}
