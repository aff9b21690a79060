package testutil

// IntPtr is a helper for creating *int values in tests
func IntPtr(v int) *int {
	return &v
}
