package nvimhost

import (
	"context"
	"strings"

	"codeassist/editor"
	"codeassist/logger"
)

// definitionLua resolves a definition through whatever LSP client is
// attached, synchronously with a short timeout so batch semantics hold.
const definitionLua = `
local path, line, character = ...
local bufnr = vim.fn.bufnr(path)
if bufnr < 0 then return {} end
local clients = vim.lsp.get_clients and vim.lsp.get_clients({bufnr = bufnr})
	or vim.lsp.get_active_clients({bufnr = bufnr})
if #clients == 0 then return {} end
local params = {
	textDocument = { uri = vim.uri_from_bufnr(bufnr) },
	position = { line = line, character = character },
}
local results = vim.lsp.buf_request_sync(bufnr, "textDocument/definition", params, 250)
local out = {}
for _, res in pairs(results or {}) do
	local items = res.result or {}
	if items.uri or items.targetUri then items = { items } end
	for _, item in ipairs(items) do
		local uri = item.uri or item.targetUri
		local range = item.range or item.targetSelectionRange
		if uri and range then
			table.insert(out, {
				path = vim.uri_to_fname(uri),
				line = range.start.line,
				character = range.start.character,
			})
		end
	end
end
return out
`

// DefinitionsAt implements editor.SymbolProvider through the attached
// language servers. No attached server yields no locations, not an error.
func (h *Host) DefinitionsAt(ctx context.Context, path string, pos editor.Position) ([]editor.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []map[string]any
	batch := h.client.NewBatch()
	batch.ExecLua(definitionLua, &raw, path, pos.Line, pos.Character)
	if err := batch.Execute(); err != nil {
		logger.Warn("nvimhost: definition lookup: %v", err)
		return nil, nil
	}

	locs := make([]editor.Location, 0, len(raw))
	for _, m := range raw {
		p, _ := m["path"].(string)
		if p == "" {
			continue
		}
		start := editor.Position{
			Line:      asInt(m["line"]),
			Character: asInt(m["character"]),
		}
		locs = append(locs, editor.Location{
			Path:  strings.TrimSpace(p),
			Range: editor.Range{Start: start, End: start},
		})
	}
	return locs, nil
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
