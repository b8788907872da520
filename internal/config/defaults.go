package config

// Defaults returns the default value of every configuration key. Registering
// all keys lets environment variables override values absent from the file.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"service.name":        ServiceName,
		"service.environment": "development",
		"service.version":     "dev",
		"service.client_url":  "http://localhost:3000",

		"database.host":               "localhost",
		"database.port":               5432,
		"database.name":               "storybook",
		"database.user":               "postgres",
		"database.password":           "",
		"database.ssl_mode":           "disable",
		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "30m",
		"database.conn_max_idle_time": "5m",
		"database.log_level":          "warn",
		"database.slow_threshold":     "200ms",

		"server.http.host": "0.0.0.0",
		"server.http.port": 8080,
		"server.grpc.host": "0.0.0.0",
		"server.grpc.port": 9090,

		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.file_path":   "",
		"log.development": false,

		"jwt.secret": "",
		"jwt.issuer": "",

		"paypal.client_id": "",
		"paypal.secret":    "",
		"paypal.base_url":  "https://api-m.sandbox.paypal.com",
		"paypal.timeout":   "30s",

		"polar.webhook_secret":      "",
		"polar.timestamp_tolerance": "5m",

		"payment.max_attempts":     3,
		"payment.initial_backoff":  "1s",
		"payment.max_backoff":      "8s",
		"payment.verify_timeout":   "30s",
		"payment.amount_tolerance": "0.01",
		"payment.currency":         "USD",

		"webhook.min_credits": 1,
		"webhook.max_credits": 100,

		"catalog.paypal": []map[string]interface{}{
			{"id": 1, "name": "Starter", "price": "3.99", "credits": 3},
			{"id": 2, "name": "Popular", "price": "4.99", "credits": 7},
			{"id": 3, "name": "Family", "price": "8.99", "credits": 12},
			{"id": 4, "name": "Library", "price": "9.99", "credits": 16},
		},
		"catalog.polar": []map[string]interface{}{
			{"id": 1, "name": "Starter", "price": "3.99", "credits": 3},
			{"id": 2, "name": "Popular", "price": "4.99", "credits": 5},
			{"id": 3, "name": "Family", "price": "8.99", "credits": 8},
			{"id": 4, "name": "Library", "price": "9.99", "credits": 12},
		},

		"redis.enabled":     false,
		"redis.addr":        "localhost:6379",
		"redis.password":    "",
		"redis.db":          0,
		"redis.balance_ttl": "5m",

		"rate_limit.backend":      "memory",
		"rate_limit.max_requests": 5,
		"rate_limit.window":       "1m",
		"rate_limit.min_interval": "5s",

		"generation.llm_model":       "gpt-4o-mini",
		"generation.llm_api_key":     "",
		"generation.llm_base_url":    "",
		"generation.image_api_url":   "https://api.openai.com/v1/images/generations",
		"generation.image_api_key":   "",
		"generation.image_model":     "dall-e-3",
		"generation.image_max_width": 1024,
		"generation.chapters":        5,
		"generation.call_timeout":    "60s",
		"generation.max_attempts":    3,
		"generation.initial_backoff": "1s",

		"storage.bucket":            "storybook-assets",
		"storage.region":            "us-east-1",
		"storage.endpoint":          "",
		"storage.access_key_id":     "",
		"storage.secret_access_key": "",
		"storage.public_base_url":   "",
		"storage.use_path_style":    false,
		"storage.key_prefix":        "stories",

		"telemetry.enabled":      false,
		"telemetry.endpoint":     "localhost:4318",
		"telemetry.insecure":     true,
		"telemetry.sample_ratio": 1.0,
	}
}
