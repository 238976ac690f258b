package commontypes

// Result is a single card in a query response.
type Result struct {
	Title            string            `json:"title"`
	SubTitle         string            `json:"subTitle"`
	IcoPath          string            `json:"icoPath,omitempty"`
	Score            int               `json:"score"`
	Action           Action            `json:"action"`
	ContextMenuItems []ContextMenuItem `json:"contextMenuItems,omitempty"`
}

// Action is a client-side effect: copying a value, replacing the query, or a
// host call replayed by the Mini App bridge.
type Action struct {
	Method     string `json:"method"`
	Parameters []any  `json:"parameters"`
}

// ContextMenuItem defines a secondary action for a Result.
type ContextMenuItem struct {
	Title    string `json:"title"`
	SubTitle string `json:"subTitle"`
	IcoPath  string `json:"icoPath,omitempty"`
	Action   Action `json:"action"`
}

// Client-side action methods.
const (
	MethodCopyToClipboard = "copy_to_clipboard"
	MethodChangeQuery     = "change_query"
)

// CopyAction copies value to the clipboard.
func CopyAction(value string) Action {
	return Action{Method: MethodCopyToClipboard, Parameters: []any{value}}
}
