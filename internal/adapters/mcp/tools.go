package mcpadapter

import "github.com/mark3labs/mcp-go/mcp"

func filterOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("source",
			mcp.Description("Restrict to one source identifier, e.g. usc-5-552"),
		),
		mcp.WithString("category",
			mcp.Description("Restrict to a document category"),
		),
		mcp.WithString("source_type",
			mcp.Description("Restrict to a source type: statute, regulation, guidance, ..."),
		),
		mcp.WithString("date_from",
			mcp.Description("Earliest publication date (YYYY-MM-DD)"),
		),
		mcp.WithString("date_to",
			mcp.Description("Latest publication date (YYYY-MM-DD)"),
		),
	}
}

func answerQuestionTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Answer a question about the indexed legal and government documents, with per-sentence citations"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Question in natural language"),
		),
	}
	return mcp.NewTool("answer_question", append(opts, filterOptions()...)...)
}

func searchEvidenceTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Return the ranked evidence passages for a question without generating an answer"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Question or keywords"),
		),
	}
	return mcp.NewTool("search_evidence", append(opts, filterOptions()...)...)
}
