package mockengine

// generateStatic returns the literal static_response with no side effects.
func (e *Engine) generateStatic(cfg *MockConfig) (any, error) {
	return cfg.StaticResponse, nil
}
