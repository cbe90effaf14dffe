package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll adds every tool whose dependencies are available.
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ping",
		Description: "Test tool - responds with pong or echoes input",
	}, NewPingHandler(deps))

	if deps != nil && deps.Documents != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "search_documents",
			Description: "Semantic search over ingested documents. Returns matching passages with their source and heading.",
		}, NewSearchHandler(deps))
	}

	if deps != nil && deps.Predictor != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name: "simulate_solar_cell",
			Description: "Predict TOPCon solar cell performance (Vm, Im, Voc, Jsc, FF, Eff) from device parameters " +
				"with pre-trained ML models and plot the JV curve. Omitted parameters use typical values.",
		}, NewSolarHandler(deps))
	}
}
