package config

// Default model names. The chat model can be overridden per-user in
// settings; the meta model is fixed cheap-and-fast for memory tasks.
const (
	DefaultModelName      = "gemini-2.5-flash"
	DefaultMetaModelName  = "gemini-2.5-flash"
	DefaultImageModelName = "gemini-2.0-flash-preview-image-generation"
)

// DefaultSystemConfig returns the built-in configuration.
func DefaultSystemConfig() *Config {
	return &Config{
		DataDirectory:  GetDefaultDataDir(),
		ModelName:      DefaultModelName,
		MetaModelName:  DefaultMetaModelName,
		ImageModelName: DefaultImageModelName,
	}
}

// GenerateSystemConfigTemplate returns the commented settings.toml
// written on first run.
func GenerateSystemConfigTemplate() string {
	return `# gemchat system configuration
#
# data_directory holds the chat database and logs.
# model_name is the default chat model; override per-user with /model.
# meta_model_name runs memory extraction/consolidation/retrieval.

data_directory = "` + GetDefaultDataDir() + `"
model_name = "` + DefaultModelName + `"
meta_model_name = "` + DefaultMetaModelName + `"
image_model_name = "` + DefaultImageModelName + `"
`
}
