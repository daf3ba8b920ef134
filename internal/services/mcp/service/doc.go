// Package service exposes dice rolling as an MCP tool.
//
// The tool runs over stdio for local assistants or over streamable HTTP for
// remote clients, and evaluates either in process or through the dice gRPC
// service.
package service
