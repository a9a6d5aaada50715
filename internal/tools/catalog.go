// ABOUTME: The fixed MCP tool catalog with JSON schemas built via mcp-go
// ABOUTME: Six tools: collection CRUD plus the network-bound execute_request

package tools

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	CreateCollection = "create_collection"
	ListCollections  = "list_collections"
	AddRequest       = "add_request"
	UpdateRequest    = "update_request"
	DeleteCollection = "delete_collection"
	ExecuteRequest   = "execute_request"
)

// HTTPMethods are the methods add_request advertises. Any other valid method
// token is accepted as well.
var HTTPMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}

var catalog = []mcp.Tool{
	mcp.NewTool(CreateCollection,
		mcp.WithDescription("Create a new API collection"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Name of the collection")),
	),
	mcp.NewTool(ListCollections,
		mcp.WithDescription("List all API collections with their request counts"),
	),
	mcp.NewTool(AddRequest,
		mcp.WithDescription("Add an HTTP request to a collection"),
		mcp.WithString("collection_id", mcp.Required(), mcp.Description("ID of the collection")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Name of the request")),
		mcp.WithString("method", mcp.Required(), mcp.Description("HTTP method"), mcp.Enum(HTTPMethods...)),
		mcp.WithString("url", mcp.Required(), mcp.Description("Request URL")),
	),
	mcp.NewTool(UpdateRequest,
		mcp.WithDescription("Update fields of an existing request in a collection"),
		mcp.WithString("collection_id", mcp.Required(), mcp.Description("ID of the collection")),
		mcp.WithString("request_id", mcp.Required(), mcp.Description("ID of the request to update")),
		mcp.WithString("name", mcp.Description("New name for the request")),
		mcp.WithString("method", mcp.Description("New HTTP method")),
		mcp.WithString("url", mcp.Description("New request URL")),
	),
	mcp.NewTool(DeleteCollection,
		mcp.WithDescription("Delete a collection and all of its requests"),
		mcp.WithString("collection_id", mcp.Required(), mcp.Description("ID of the collection to delete")),
	),
	mcp.NewTool(ExecuteRequest,
		mcp.WithDescription("Execute a saved request and return the HTTP response"),
		mcp.WithString("collection_id", mcp.Required(), mcp.Description("ID of the collection")),
		mcp.WithString("request_id", mcp.Required(), mcp.Description("ID of the request to execute")),
		mcp.WithNumber("timeout_ms", mcp.Description("Request timeout in milliseconds (default 30000)")),
	),
}

// Catalog returns the tool definitions in their published order.
func Catalog() []mcp.Tool {
	out := make([]mcp.Tool, len(catalog))
	copy(out, catalog)
	return out
}
