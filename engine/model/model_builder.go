package model

// ModelBuilderOption is a functional option for configuring a Model via NewModel.
type ModelBuilderOption func(*model)

// WithName is an option builder that sets the name of the Model. The name prefixes the labels of
// its GPU buffers.
//
// Parameters:
//   - name: the model identifier
//
// Returns:
//   - ModelBuilderOption: a function that applies the name option to a model
func WithName(name string) ModelBuilderOption {
	return func(m *model) {
		m.name = name
	}
}

// WithUnindexed expands an indexed mesh into a flat triangle list so it is drawn without an
// index buffer.
//
// Returns:
//   - ModelBuilderOption: a function that applies the unindexed option to a model
func WithUnindexed() ModelBuilderOption {
	return func(m *model) {
		m.data = m.data.Unindexed()
	}
}
