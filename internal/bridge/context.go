package bridge

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"

	"github.com/egoavara/modmgr/internal/hostapi"
)

// DefaultEnvVar carries the serialized ScriptContext.
const DefaultEnvVar = "MODMGR_CONTEXT"

// Selection is the host selection at spawn time.
type Selection struct {
	Folders []hostapi.Folder `json:"folders"`
	Items   []hostapi.Item   `json:"items"`
}

// ScriptContext is the JSON blob handed to a script through its environment.
type ScriptContext struct {
	Selected Selection `json:"selected"`
	APIToken string    `json:"apiToken"`
}

// SelectionSource reads the current host selection. *hostapi.Client
// implements it.
type SelectionSource interface {
	SelectedItems(ctx context.Context) ([]hostapi.Item, error)
	SelectedFolders(ctx context.Context) ([]hostapi.Folder, error)
}

// BuildContext snapshots the selection. A nil src or a failed read yields an
// empty list.
func BuildContext(ctx context.Context, src SelectionSource, token string, logger *log.Logger) ScriptContext {
	sc := ScriptContext{
		Selected: Selection{Folders: []hostapi.Folder{}, Items: []hostapi.Item{}},
		APIToken: token,
	}
	if src == nil {
		return sc
	}

	if items, err := src.SelectedItems(ctx); err != nil {
		logger.Warn("reading selected items", "err", err)
	} else if items != nil {
		sc.Selected.Items = items
	}
	if folders, err := src.SelectedFolders(ctx); err != nil {
		logger.Warn("reading selected folders", "err", err)
	} else if folders != nil {
		sc.Selected.Folders = folders
	}
	return sc
}

// Encode returns the JSON form of sc.
func (sc ScriptContext) Encode() (string, error) {
	data, err := json.Marshal(sc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
