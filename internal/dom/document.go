package dom

// Document is the root of a headless page: a head for stylesheets, a body for
// plugin containers and the shell, the host's primary content area.
type Document struct {
	Head  *Node
	Body  *Node
	Shell *Node
}

// ShellID is the id of the primary content area.
const ShellID = "shell"

// NewDocument creates an empty document with a visible shell.
func NewDocument() *Document {
	d := &Document{
		Head:  NewElement("head"),
		Body:  NewElement("body"),
		Shell: NewElement("main"),
	}
	d.Shell.SetAttr("id", ShellID)
	d.Body.AppendChild(d.Shell)
	return d
}

// GetElementByID searches head and body.
func (d *Document) GetElementByID(id string) *Node {
	match := func(n *Node) bool { return n.Kind == KindElement && n.ID == id }
	if n := d.Head.Find(match); n != nil {
		return n
	}
	return d.Body.Find(match)
}

// CreateElement creates a detached element with an id.
func (d *Document) CreateElement(tag, id string) *Node {
	n := NewElement(tag)
	if id != "" {
		n.SetAttr("id", id)
	}
	return n
}

// AddStyle installs css under id in the head, replacing an earlier sheet with
// the same id.
func (d *Document) AddStyle(id, css string) *Node {
	if old := d.GetElementByID(id); old != nil {
		old.Remove()
	}
	style := d.CreateElement("style", id)
	style.AppendChild(NewRaw(css))
	d.Head.AppendChild(style)
	return style
}

// RemoveStyle drops the stylesheet installed under id.
func (d *Document) RemoveStyle(id string) {
	if n := d.GetElementByID(id); n != nil && n.Tag == "style" {
		n.Remove()
	}
}

// HideShell hides the primary content area.
func (d *Document) HideShell() {
	d.Shell.Hidden = true
}
