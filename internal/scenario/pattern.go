package scenario

import (
	"fmt"
	"regexp"
	"strings"
)

type ParamType int

const (
	// StringParam captures any quoted string.
	StringParam ParamType = iota
	// EnumParam captures one of a fixed set of quoted literals.
	EnumParam
)

// Param is a typed placeholder referenced as {Name} in a phrase.
type Param struct {
	Name   string
	Type   ParamType
	Values []string
}

func String(name string) Param {
	return Param{Name: name, Type: StringParam}
}

func Enum(name string, values ...string) Param {
	return Param{Name: name, Type: EnumParam, Values: values}
}

func (p Param) expression() (string, error) {
	switch p.Type {
	case StringParam:
		return `"([^"]*)"`, nil
	case EnumParam:
		if len(p.Values) == 0 {
			return "", fmt.Errorf("enum parameter %q has no values", p.Name)
		}
		quoted := make([]string, 0, len(p.Values))
		for _, v := range p.Values {
			quoted = append(quoted, regexp.QuoteMeta(v))
		}
		return `"(` + strings.Join(quoted, "|") + `)"`, nil
	default:
		return "", fmt.Errorf("parameter %q has unknown type %d", p.Name, p.Type)
	}
}

var placeholder = regexp.MustCompile(`\{([A-Za-z][A-Za-z0-9_]*)\}`)

// compilePhrase turns a phrase with {name} placeholders into an anchored
// expression and returns the parameter names in capture order.
func compilePhrase(phrase string, params []Param) (*regexp.Regexp, []string, error) {
	byName := make(map[string]Param, len(params))
	for _, p := range params {
		if _, dup := byName[p.Name]; dup {
			return nil, nil, fmt.Errorf("parameter %q declared twice", p.Name)
		}
		byName[p.Name] = p
	}

	var (
		expr  strings.Builder
		order []string
		used  = make(map[string]bool)
		last  int
	)
	expr.WriteString("^")
	for _, loc := range placeholder.FindAllStringSubmatchIndex(phrase, -1) {
		name := phrase[loc[2]:loc[3]]
		p, ok := byName[name]
		if !ok {
			return nil, nil, fmt.Errorf("phrase %q references undeclared parameter %q", phrase, name)
		}
		if used[name] {
			return nil, nil, fmt.Errorf("phrase %q references parameter %q twice", phrase, name)
		}
		group, err := p.expression()
		if err != nil {
			return nil, nil, err
		}
		expr.WriteString(regexp.QuoteMeta(phrase[last:loc[0]]))
		expr.WriteString(group)
		order = append(order, name)
		used[name] = true
		last = loc[1]
	}
	expr.WriteString(regexp.QuoteMeta(phrase[last:]))
	expr.WriteString("$")

	for name := range byName {
		if !used[name] {
			return nil, nil, fmt.Errorf("phrase %q does not use parameter %q", phrase, name)
		}
	}

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, nil, fmt.Errorf("while compiling phrase %q: %w", phrase, err)
	}
	return re, order, nil
}

// Args are the captured parameters of a matched step, keyed by name.
type Args map[string]string

func (a Args) Get(name string) string {
	return a[name]
}

var keywords = []string{"Given ", "When ", "Then ", "And ", "But ", "* "}

// stripKeyword removes a leading Gherkin keyword and surrounding blanks.
func stripKeyword(line string) string {
	text := strings.TrimSpace(line)
	for _, k := range keywords {
		if strings.HasPrefix(text, k) {
			return strings.TrimSpace(text[len(k):])
		}
	}
	return text
}
