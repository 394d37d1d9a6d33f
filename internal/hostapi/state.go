package hostapi

import "context"

// Item is the part of an item record the runtime cares about.
type Item struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Ext  string   `json:"ext,omitempty"`
	Tags []string `json:"tags,omitempty"`
}

// Folder is the part of a folder record the runtime cares about.
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SelectedItems returns the items selected in the host.
func (c *Client) SelectedItems(ctx context.Context) ([]Item, error) {
	var items []Item
	if err := c.Invoke(ctx, "item", "getSelected", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SelectedFolders returns the folders selected in the host.
func (c *Client) SelectedFolders(ctx context.Context) ([]Folder, error) {
	var folders []Folder
	if err := c.Invoke(ctx, "folder", "getSelected", nil, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// LibraryPath returns the path of the open library.
func (c *Client) LibraryPath(ctx context.Context) (string, error) {
	var info struct {
		Library struct {
			Path string `json:"path"`
		} `json:"library"`
	}
	if err := c.Invoke(ctx, "library", "info", nil, &info); err != nil {
		return "", err
	}
	return info.Library.Path, nil
}
