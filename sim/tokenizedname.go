package sim

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
)

// A Name is a hierarchical name that includes a series of tokens separated
// by dots, for example "GPU[1].Coalescer.Top[3]".
type Name struct {
	Tokens []NameToken
}

// NameToken is a token of a name.
type NameToken struct {
	ElemName string
	Index    []int
}

// Last returns the last token of the name.
func (n Name) Last() NameToken {
	return n.Tokens[len(n.Tokens)-1]
}

// Parent returns the name without its last token.
func (n Name) Parent() string {
	parts := make([]string, 0, len(n.Tokens)-1)
	for _, t := range n.Tokens[:len(n.Tokens)-1] {
		parts = append(parts, t.String())
	}

	return strings.Join(parts, ".")
}

func (t NameToken) String() string {
	s := t.ElemName
	for _, i := range t.Index {
		s += "[" + strconv.Itoa(i) + "]"
	}

	return s
}

// ParseName parses a name string and returns a Name object. It panics if the
// name cannot be parsed.
func ParseName(sname string) Name {
	name, err := TryParseName(sname)
	if err != nil {
		log.Panicf("cannot parse name %q: %v", sname, err)
	}

	return name
}

// TryParseName parses a name string and reports malformed names as errors.
func TryParseName(sname string) (Name, error) {
	tokens := strings.Split(sname, ".")
	name := Name{Tokens: make([]NameToken, len(tokens))}

	for i, token := range tokens {
		t, err := parseNameToken(token)
		if err != nil {
			return Name{}, err
		}

		name.Tokens[i] = t
	}

	return name, nil
}

func parseNameToken(token string) (NameToken, error) {
	open := strings.IndexByte(token, '[')
	if open < 0 {
		if strings.ContainsRune(token, ']') {
			return NameToken{}, errors.New("bracket must match")
		}

		return NameToken{ElemName: token}, nil
	}

	t := NameToken{ElemName: token[:open]}
	rest := token[open:]

	for rest != "" {
		if rest[0] != '[' {
			return NameToken{}, fmt.Errorf("unexpected %q after index", rest)
		}

		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return NameToken{}, errors.New("bracket must match")
		}

		index, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return NameToken{}, errors.New("index must be integer")
		}

		t.Index = append(t.Index, index)
		rest = rest[end+1:]
	}

	return t, nil
}

// NameMustBeValid panics if the name does not follow the naming convention.
// Tokens are dot separated, non-empty, start with a capital letter, and
// series elements use square-bracket indices.
func NameMustBeValid(name string) {
	n, err := TryParseName(name)
	if err != nil {
		log.Panicf("name %s is not valid: %v", name, err)
	}

	for _, token := range n.Tokens {
		if err := tokenValid(token); err != nil {
			log.Panicf("name %s is not valid: %v", name, err)
		}
	}
}

func tokenValid(token NameToken) error {
	if token.ElemName == "" {
		return errors.New("element must not be empty")
	}

	if strings.ContainsAny(token.ElemName, "_\"'- ") {
		return fmt.Errorf("element %q contains an invalid character",
			token.ElemName)
	}

	if token.ElemName[0] < 'A' || token.ElemName[0] > 'Z' {
		return fmt.Errorf("element %q must start with a capital letter",
			token.ElemName)
	}

	return nil
}

// BuildName builds a name from a parent name and an element name.
func BuildName(parentName, elementName string) string {
	if parentName == "" {
		return elementName
	}

	return parentName + "." + elementName
}

// BuildNameWithIndex builds a name from a parent name, an element name and an
// index.
func BuildNameWithIndex(parentName, elementName string, index int) string {
	return BuildName(parentName, elementName+"["+strconv.Itoa(index)+"]")
}
