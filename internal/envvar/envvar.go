package envvar

const (
	// SeamlessEnv is the environment variable used to determine the environment
	SeamlessEnv = "SEAMLESS_ENV"

	// SeamlessServerHTTPPort is the environment variable used to determine the HTTP port
	SeamlessServerHTTPPort = "SEAMLESS_SERVER_HTTP_PORT"

	// SeamlessServerGRPCPort is the environment variable used to determine the gRPC port
	SeamlessServerGRPCPort = "SEAMLESS_SERVER_GRPC_PORT"

	// SeamlessModelsPath overrides the models directory from the config file
	SeamlessModelsPath = "SEAMLESS_MODELS_PATH"

	// OpenAIAPIKey is the default environment variable holding the OpenAI API key
	OpenAIAPIKey = "OPENAI_API_KEY"
)
