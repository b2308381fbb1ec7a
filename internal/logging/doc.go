// Package logging builds the structured loggers used by the commands and
// the MCP server, and adapts them to the injector's diagnostics interface.
package logging
