package browser

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AXNode is one node of a page's accessibility tree, as reported by the
// driver's ARIA snapshot.
type AXNode struct {
	Role       string            `json:"role"`
	Name       string            `json:"name,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	// Props holds "/key: value" entries such as a link's /url.
	Props    map[string]string `json:"props,omitempty"`
	Children []*AXNode         `json:"children,omitempty"`
}

// ParseAriaSnapshot parses a YAML ARIA snapshot into a tree rooted at a
// synthetic "document" node.
func ParseAriaSnapshot(snapshot string) (*AXNode, error) {
	root := &AXNode{Role: "document"}
	if strings.TrimSpace(snapshot) == "" {
		return root, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(snapshot), &doc); err != nil {
		return nil, fmt.Errorf("parsing aria snapshot: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return root, nil
	}
	seq := doc.Content[0]
	if seq.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("parsing aria snapshot: expected a list at line %d", seq.Line)
	}
	if err := appendChildren(root, seq); err != nil {
		return nil, err
	}
	return root, nil
}

func appendChildren(parent *AXNode, seq *yaml.Node) error {
	for _, item := range seq.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			parent.Children = append(parent.Children, parseAXKey(item.Value))

		case yaml.MappingNode:
			for i := 0; i+1 < len(item.Content); i += 2 {
				key, value := item.Content[i].Value, item.Content[i+1]

				if strings.HasPrefix(key, "/") {
					if parent.Props == nil {
						parent.Props = map[string]string{}
					}
					parent.Props[strings.TrimPrefix(key, "/")] = value.Value
					continue
				}

				node := parseAXKey(key)
				switch value.Kind {
				case yaml.ScalarNode:
					if node.Name == "" {
						node.Name = value.Value
					}
				case yaml.SequenceNode:
					if err := appendChildren(node, value); err != nil {
						return err
					}
				}
				parent.Children = append(parent.Children, node)
			}

		default:
			return fmt.Errorf("parsing aria snapshot: unexpected node at line %d", item.Line)
		}
	}
	return nil
}

// parseAXKey splits `role "name" [attr=value] [flag]`.
func parseAXKey(key string) *AXNode {
	key = strings.TrimSpace(key)
	role, rest, _ := strings.Cut(key, " ")
	node := &AXNode{Role: role}
	rest = strings.TrimSpace(rest)

	if strings.HasPrefix(rest, `"`) {
		end := closingQuote(rest)
		if end > 0 {
			if name, err := strconv.Unquote(rest[:end+1]); err == nil {
				node.Name = name
			} else {
				node.Name = rest[1:end]
			}
			rest = strings.TrimSpace(rest[end+1:])
		}
	}

	for strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			break
		}
		k, v, found := strings.Cut(rest[1:end], "=")
		if !found {
			v = "true"
		}
		if node.Attributes == nil {
			node.Attributes = map[string]string{}
		}
		node.Attributes[strings.TrimSpace(k)] = strings.TrimSpace(v)
		rest = strings.TrimSpace(rest[end+1:])
	}
	return node
}

func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

var labelledInputRoles = []string{"textbox", "checkbox", "radio", "combobox"}

// AccessibilityIssues walks the tree depth-first and reports unnamed
// images, buttons, links and form inputs.
func AccessibilityIssues(root *AXNode) []string {
	var issues []string
	var walk func(n *AXNode)
	walk = func(n *AXNode) {
		if n.Name == "" {
			switch {
			case n.Role == "img":
				issues = append(issues, "Image without alt text")
			case n.Role == "button":
				issues = append(issues, "Button without accessible name")
			case n.Role == "link":
				issues = append(issues, "Link without text")
			case oneOf(n.Role, labelledInputRoles...):
				issues = append(issues, fmt.Sprintf("Form input (%s) without label", n.Role))
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return issues
}

// AccessibilityReport summarises the issues found in root.
func AccessibilityReport(root *AXNode) string {
	issues := AccessibilityIssues(root)
	if len(issues) == 0 {
		return "No accessibility issues found"
	}
	return fmt.Sprintf("Found %d accessibility issues:\n%s", len(issues), strings.Join(issues, "\n"))
}

// renderAXTree prints the tree one node per line, indented by depth.
func renderAXTree(root *AXNode, includeRole, includeText bool) string {
	var b strings.Builder
	var walk func(n *AXNode, depth int)
	walk = func(n *AXNode, depth int) {
		var parts []string
		if includeRole {
			parts = append(parts, n.Role)
		}
		if includeText && n.Name != "" {
			parts = append(parts, strconv.Quote(n.Name))
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, "%s- %s\n", strings.Repeat("  ", depth), strings.Join(parts, " "))
		}
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	for _, c := range root.Children {
		walk(c, 0)
	}
	return b.String()
}
