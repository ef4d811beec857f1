// Package config loads the flink-sql-mcp configuration from YAML.
//
// Configuration is optional: with no file, the built-in defaults point at a
// local SQL gateway. Values in the file may reference environment variables
// with ${VAR_NAME} syntax, and the gateway base URL can be overridden
// directly with SQL_GATEWAY_API_BASE_URL regardless of where the rest of
// the configuration came from.
package config
