package gateway

import "context"

// controlOS actions the model may request during conversation.
const (
	ActionOpenApp        = "OPEN_APP"
	ActionMinimizeAll    = "MINIMIZE_ALL"
	ActionSearchVault    = "SEARCH_VAULT"
	ActionArrangeWindows = "ARRANGE_WINDOWS"
)

// ControlOSCall is a parsed controlOS invocation.
type ControlOSCall struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

// OSController receives dispatched controlOS actions. Implementations
// may treat any action as a no-op; the call is acknowledged either way.
type OSController interface {
	OpenApp(id string)
	MinimizeAll()
	ArrangeWindows()
	SearchVault(ctx context.Context, query string)
}

// ControlOSDeclaration returns the tool declared on conversational calls.
func ControlOSDeclaration() Tool {
	return Tool{
		Name:        "controlOS",
		Description: "Control the desktop: open an app, minimize all windows, arrange windows, or search the knowledge vault.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type": "string",
					"enum": []string{ActionOpenApp, ActionMinimizeAll, ActionSearchVault, ActionArrangeWindows},
				},
				"target": map[string]any{
					"type":        "string",
					"description": "App id for OPEN_APP or query for SEARCH_VAULT.",
				},
			},
			"required": []string{"action"},
		},
	}
}

// ParseControlOS extracts a ControlOSCall from a raw tool call.
func ParseControlOS(tc ToolCall) ControlOSCall {
	var call ControlOSCall
	if v, ok := tc.Args["action"].(string); ok {
		call.Action = v
	}
	if v, ok := tc.Args["target"].(string); ok {
		call.Target = v
	}
	return call
}

// Dispatch routes a parsed call to the controller. Unknown actions are
// acknowledged without effect.
func Dispatch(ctx context.Context, ctrl OSController, call ControlOSCall) {
	switch call.Action {
	case ActionOpenApp:
		ctrl.OpenApp(call.Target)
	case ActionMinimizeAll:
		ctrl.MinimizeAll()
	case ActionArrangeWindows:
		ctrl.ArrangeWindows()
	case ActionSearchVault:
		ctrl.SearchVault(ctx, call.Target)
	}
}
