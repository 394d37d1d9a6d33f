// Package dom is a small headless document tree that mod and plugin code
// renders into.
//
// A Document is owned by one goroutine, the event loop that runs mod code.
// Nothing here is synchronized.
package dom

// Kind is the node type discriminator.
type Kind uint8

const (
	KindElement Kind = iota // <div>, <button>, etc.
	KindText                // Plain text node
	KindRaw                 // Markup set through SetHTML, rendered verbatim
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindElement:
		return "Element"
	case KindText:
		return "Text"
	case KindRaw:
		return "Raw"
	default:
		return "Unknown"
	}
}

// Event is delivered to listeners.
type Event struct {
	Type   string
	Target *Node
	Data   map[string]any

	stopped bool
}

// StopPropagation keeps the event from reaching ancestors.
func (e *Event) StopPropagation() {
	e.stopped = true
}

// Listener handles an event.
type Listener func(*Event)

type listenerEntry struct {
	id int
	fn Listener
}

// Node is an element, text or raw markup node.
type Node struct {
	Kind     Kind
	Tag      string
	ID       string
	Attrs    map[string]string
	Text     string // for KindText and KindRaw
	Children []*Node
	Hidden   bool

	parent    *Node
	listeners map[string][]listenerEntry
	nextID    int
	cleanups  []func()
}

// NewElement creates an element node.
func NewElement(tag string) *Node {
	return &Node{Kind: KindElement, Tag: tag, Attrs: make(map[string]string)}
}

// NewText creates an escaped text node.
func NewText(text string) *Node {
	return &Node{Kind: KindText, Text: text}
}

// NewRaw creates a node whose markup is rendered as is.
func NewRaw(markup string) *Node {
	return &Node{Kind: KindRaw, Text: markup}
}

// Parent returns the parent node, or nil when detached.
func (n *Node) Parent() *Node {
	return n.parent
}

// SetAttr sets an attribute. Setting "id" also sets ID.
func (n *Node) SetAttr(key, value string) {
	if n.Attrs == nil {
		n.Attrs = make(map[string]string)
	}
	if key == "id" {
		n.ID = value
		return
	}
	n.Attrs[key] = value
}

// AppendChild attaches child as the last child, detaching it from any
// previous parent.
func (n *Node) AppendChild(child *Node) *Node {
	if child.parent != nil {
		child.parent.RemoveChild(child)
	}
	child.parent = n
	n.Children = append(n.Children, child)
	return child
}

// RemoveChild detaches child. It reports whether child was a child of n.
func (n *Node) RemoveChild(child *Node) bool {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			child.parent = nil
			return true
		}
	}
	return false
}

// Remove detaches the node from its parent.
func (n *Node) Remove() {
	if n.parent != nil {
		n.parent.RemoveChild(n)
	}
}

// ReplaceWith puts other in n's place.
func (n *Node) ReplaceWith(other *Node) {
	p := n.parent
	if p == nil {
		return
	}
	if other.parent != nil {
		other.parent.RemoveChild(other)
	}
	for i, c := range p.Children {
		if c == n {
			p.Children[i] = other
			other.parent = p
			n.parent = nil
			return
		}
	}
}

// Clear removes every child.
func (n *Node) Clear() {
	for _, c := range n.Children {
		c.parent = nil
	}
	n.Children = nil
}

// SetHTML replaces the children with markup.
func (n *Node) SetHTML(markup string) {
	n.Clear()
	if markup != "" {
		n.AppendChild(NewRaw(markup))
	}
}

// SetText replaces the children with a text node.
func (n *Node) SetText(text string) {
	n.Clear()
	n.AppendChild(NewText(text))
}

// AddEventListener registers fn for typ and returns a function removing it.
func (n *Node) AddEventListener(typ string, fn Listener) func() {
	if n.listeners == nil {
		n.listeners = make(map[string][]listenerEntry)
	}
	n.nextID++
	id := n.nextID
	n.listeners[typ] = append(n.listeners[typ], listenerEntry{id: id, fn: fn})

	return func() {
		entries := n.listeners[typ]
		for i, e := range entries {
			if e.id == id {
				n.listeners[typ] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount returns the number of listeners on this node alone.
func (n *Node) ListenerCount() int {
	total := 0
	for _, entries := range n.listeners {
		total += len(entries)
	}
	return total
}

// Dispatch delivers ev to n and then to its ancestors until a listener stops
// propagation. It returns the number of listeners invoked.
func (n *Node) Dispatch(ev *Event) int {
	if ev.Target == nil {
		ev.Target = n
	}
	called := 0
	for cur := n; cur != nil && !ev.stopped; cur = cur.parent {
		// listeners added during dispatch wait for the next event
		entries := append([]listenerEntry(nil), cur.listeners[ev.Type]...)
		for _, e := range entries {
			e.fn(ev)
			called++
		}
	}
	return called
}

// OnCleanup registers fn to run when the node is torn down with Teardown.
func (n *Node) OnCleanup(fn func()) {
	n.cleanups = append(n.cleanups, fn)
}

// Teardown runs the cleanup callbacks of n and its descendants, deepest
// first, and drops every listener.
func (n *Node) Teardown() {
	for _, c := range n.Children {
		c.Teardown()
	}
	cleanups := n.cleanups
	n.cleanups = nil
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	n.listeners = nil
}

// CloneWithoutListeners returns a deep copy without listeners or cleanup
// callbacks.
func (n *Node) CloneWithoutListeners() *Node {
	c := &Node{
		Kind:   n.Kind,
		Tag:    n.Tag,
		ID:     n.ID,
		Text:   n.Text,
		Hidden: n.Hidden,
	}
	if n.Attrs != nil {
		c.Attrs = make(map[string]string, len(n.Attrs))
		for k, v := range n.Attrs {
			c.Attrs[k] = v
		}
	}
	for _, child := range n.Children {
		c.AppendChild(child.CloneWithoutListeners())
	}
	return c
}

// Find returns the first node in n's subtree, n included, for which match
// returns true.
func (n *Node) Find(match func(*Node) bool) *Node {
	if match(n) {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(match); found != nil {
			return found
		}
	}
	return nil
}
