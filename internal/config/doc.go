// Package config loads settings for the MCP server and the job worker from
// the environment.
//
// Load first reads optional dotenv files from the working directory, .env
// followed by .env.<APP_ENV>, with values from the files taking precedence
// over the inherited environment. FromEnv then overlays the
// variables on Default. Validate covers what the MCP server needs;
// ValidateWorker also requires the RabbitMQ URL and the S3 bucket.
package config
