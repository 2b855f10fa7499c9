package main

// General API documentation for swaggo. Regenerate the docs package with
// `swag init -g cmd/promptd/docs.go -o docs`.
//
// @title           promptd API
// @version         1.0
// @description     HTTP API for local LLM inference.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
