package tools

// Argument extraction helpers. Tool inputs arrive as string-keyed maps of
// JSON-decoded values, so numbers are float64 and everything is optional.

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func stringArgDefault(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func intArgDefault(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
