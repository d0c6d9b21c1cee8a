package fern

import (
	"fmt"

	"github.com/m1gwings/treedrawer/tree"
)

// Sketch renders the compiled tree as ASCII art, one box per node, for
// debugging structure and severity placement. The output shape is owned by
// treedrawer and not part of the stable API.
func (p *Pipeline) Sketch() string {
	t := tree.NewTree(tree.NodeString(fmt.Sprintf("%s %s", nodeLabel(p.root), p.name)))
	sketchKids(t, p.root)
	return t.String()
}

func sketchKids(t *tree.Tree, n node) {
	for i, kid := range n.kids() {
		t.AddChild(tree.NodeString(nodeLabel(kid)))
		sub, err := t.Child(i)
		if err != nil {
			continue
		}
		sketchKids(sub, kid)
	}
}

func nodeLabel(n node) string {
	label := n.kind()
	if nm := n.name(); nm != "" {
		label += " " + string(nm)
	}
	if sev := n.severity(); sev != SeverityNormal {
		label += " (" + sev.String() + ")"
	}
	switch v := n.(type) {
	case *group:
		if v.parallel {
			label += " parallel"
		}
	case *model:
		if v.parallel {
			label += " parallel"
		}
	case *loop:
		if v.parallel {
			label += " parallel"
		}
	}
	return label
}
